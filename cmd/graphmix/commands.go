package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"graphmix/internal/liquidhandling"
	"graphmix/pkg/location"
)

func (e *env) solve(ctx context.Context, path string, w io.Writer) error {
	p, err := e.load(ctx, path)
	if err != nil {
		return err
	}
	moves, err := p.Transfers()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FROM\tTO\tSOURCE\tDEST\tVOLUME")
	for _, m := range moves {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", m.From, m.To, m.Source.Qualified(), m.Dest.Qualified(), m.Volume.Compact())
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "NODE\tLOCATION\tINITIAL\tFINAL")
	for _, n := range p.Nodes() {
		initial, err := p.InitialVolume(n.Name())
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.Name(), n.Location.Qualified(), initial.Compact(), n.FinalVolume.Compact())
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if e.opts.archive == "" {
		return nil
	}
	a, err := e.openArchive(ctx)
	if err != nil {
		return err
	}
	rev, err := a.Save(ctx, e.opts.archive, p, e.cfg.Output)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "\narchived %s revision %s\n", rev.Name, rev.ID)
	return err
}

func (e *env) doc(ctx context.Context, path string, w io.Writer) error {
	p, err := e.load(ctx, path)
	if err != nil {
		return err
	}
	return p.Encode(w, e.cfg.Output)
}

func (e *env) tikz(ctx context.Context, path string, w io.Writer) error {
	p, err := e.load(ctx, path)
	if err != nil {
		return err
	}
	return p.WriteTikZ(w)
}

func (e *env) run(ctx context.Context, path string, w io.Writer) error {
	p, err := e.load(ctx, path)
	if err != nil {
		return err
	}
	tips, err := location.WellPlate(e.opts.tips)
	if err != nil {
		return err
	}
	sim := liquidhandling.NewSimulator()
	h, err := liquidhandling.NewHandler(sim, liquidhandling.Config{Tips: tips.WithName("tips")})
	if err != nil {
		return err
	}
	rep, err := liquidhandling.Run(ctx, h, p, liquidhandling.RunOptions{ReuseTip: e.opts.reuseTip, Metrics: e.metrics})
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tOP\tAT\tVOLUME")
	for i, c := range sim.Calls() {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, c.Op, c.At, c.Volume)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "\nrun %s: %d transfers\n", rep.RunID, rep.Transfers)
	return err
}

func (e *env) chemical(ctx context.Context, name string, w io.Writer) error {
	c, err := e.registry.Get(ctx, name)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

func (e *env) latest(ctx context.Context, name string, w io.Writer) error {
	a, err := e.openArchive(ctx)
	if err != nil {
		return err
	}
	p, rev, err := a.Latest(ctx, name)
	if err != nil {
		return err
	}
	f := e.cfg.Output
	if f == "" {
		f = rev.Format
	}
	return p.Encode(w, f)
}
