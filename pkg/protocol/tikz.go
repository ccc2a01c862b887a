package protocol

import (
	"io"
	"math"
	"strconv"
	"strings"
	"text/template"
)

type tikzNode struct {
	ID    string
	Label string
	X, Y  string
}

type tikzEdge struct {
	From, To string
	Label    string
}

var tikzTemplate = template.Must(template.New("tikz").Parse(`\documentclass{standalone}
\usepackage{tikz}
\usetikzlibrary{arrows.meta}
\begin{document}
\begin{tikzpicture}[>=Stealth, every node/.style={draw, rounded corners, font=\small}]
{{- range .Nodes}}
  \node ({{.ID}}) at ({{.X}}, {{.Y}}) {{"{"}}{{.Label}}{{"}"}};
{{- end}}
{{- range .Edges}}
  \draw[->] ({{.From}}) to node[draw=none, fill=white, sloped, font=\scriptsize] {{"{"}}{{.Label}}{{"}"}} ({{.To}});
{{- end}}
\end{tikzpicture}
\end{document}
`))

var latexEscaper = strings.NewReplacer(`\`, `\textbackslash{}`, `_`, `\_`, `%`, `\%`, `&`, `\&`, `#`, `\#`, `$`, `\$`, `{`, `\{`, `}`, `\}`)

// WriteTikZ writes a standalone LaTeX document that draws the protocol graph
// with nodes on a circle and arrows labelled by weight, and by volume once
// solved.
func (p *Protocol) WriteTikZ(w io.Writer) error {
	const radius = 4.0
	ids := make(map[string]string, len(p.order))
	var data struct {
		Nodes []tikzNode
		Edges []tikzEdge
	}
	for i, name := range p.order {
		angle := 2 * math.Pi * float64(i) / float64(len(p.order))
		id := "n" + strconv.Itoa(i)
		ids[name] = id
		data.Nodes = append(data.Nodes, tikzNode{
			ID:    id,
			Label: latexEscaper.Replace(name),
			X:     strconv.FormatFloat(math.Round(radius*math.Cos(angle)*1000)/1000, 'f', -1, 64),
			Y:     strconv.FormatFloat(math.Round(radius*math.Sin(angle)*1000)/1000, 'f', -1, 64),
		})
	}
	for _, e := range p.edges {
		label := strconv.FormatFloat(e.Weight*100, 'g', 4, 64) + "%"
		if p.solved && e.Volume != nil {
			label += ", " + e.Volume.String()
		}
		data.Edges = append(data.Edges, tikzEdge{From: ids[e.From], To: ids[e.To], Label: latexEscaper.Replace(label)})
	}
	return tikzTemplate.Execute(w, data)
}
