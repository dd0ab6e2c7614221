// Package barcode derives the containment graph of TCGA aliquot barcodes.
package barcode

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Edge links a parent barcode to a child barcode.
type Edge struct {
	Parent string
	Child  string
}

func (e Edge) String() string { return e.Parent + "\t" + e.Child }

// Edges returns the chain participant -> sample -> portion -> analyte ->
// aliquot of an aliquot barcode such as TCGA-AB-1234-01A-01D-0001-01.
func Edges(barcode string) ([]Edge, error) {
	parts := strings.Split(strings.TrimSpace(barcode), "-")
	if len(parts) < 5 || parts[0] != "TCGA" || len(parts[4]) < 2 {
		return nil, fmt.Errorf("not an aliquot barcode: %q", barcode)
	}
	join := func(p ...string) string { return strings.Join(p, "-") }
	participant := join(parts[:3]...)
	sample := join(parts[:4]...)
	portion := join(append(parts[:4:4], parts[4][:2])...)
	analyte := join(parts[:5]...)
	aliquot := join(parts...)
	return []Edge{
		{participant, sample},
		{sample, portion},
		{portion, analyte},
		{analyte, aliquot},
	}, nil
}

// DAG is a deduplicated edge list kept in insertion order.
type DAG struct {
	edges []Edge
	seen  map[Edge]bool
}

// NewDAG returns an empty graph.
func NewDAG() *DAG {
	return &DAG{seen: map[Edge]bool{}}
}

// Add inserts the edges of barcode.
func (d *DAG) Add(barcode string) error {
	edges, err := Edges(barcode)
	if err != nil {
		return err
	}
	for _, e := range edges {
		if !d.seen[e] {
			d.seen[e] = true
			d.edges = append(d.edges, e)
		}
	}
	return nil
}

// Edges returns the edges in insertion order.
func (d *DAG) Edges() []Edge { return append([]Edge(nil), d.edges...) }

// ReadFrom adds every line of r that starts with TCGA. Other lines are
// ignored.
func (d *DAG) ReadFrom(r io.Reader) (int64, error) {
	sc := bufio.NewScanner(r)
	var n int64
	for sc.Scan() {
		line := sc.Text()
		n += int64(len(line)) + 1
		if !strings.HasPrefix(line, "TCGA") {
			continue
		}
		if err := d.Add(line); err != nil {
			return n, err
		}
	}
	return n, sc.Err()
}

// WriteTo writes one parent<TAB>child line per edge.
func (d *DAG) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	for _, e := range d.edges {
		c, err := bw.WriteString(e.String() + "\n")
		n += int64(c)
		if err != nil {
			return n, err
		}
	}
	return n, bw.Flush()
}
