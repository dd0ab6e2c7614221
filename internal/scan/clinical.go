package scan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/clbanning/mxj"
	"github.com/gedex/inflector"
)

// clinicalEntity describes where one entity type lives in a BCR clinical XML
// document.
type clinicalEntity struct {
	// path locates entity elements from the document root.
	path string
	// barcode is the child element holding the entity key.
	barcode string
	// extra lists additional field queries relative to the entity element.
	extra []string
	// sequence copies the sequence attribute of the entity into the record.
	sequence bool
}

var clinicalEntities = map[string]clinicalEntity{
	"patient": {
		path:    "tcga_bcr/patient",
		barcode: "bcr_patient_barcode",
		extra: []string{
			"patient/stage_event/*",
			"patient/stage_event/*/*",
			"patient/stage_event/tnm_categories/*/*",
		},
	},
	"sample":    {path: "tcga_bcr/patient/samples/sample", barcode: "bcr_sample_barcode"},
	"portion":   {path: "tcga_bcr/patient/samples/sample/portions/portion", barcode: "bcr_portion_barcode"},
	"analyte":   {path: "tcga_bcr/patient/samples/sample/portions/portion/analytes/analyte", barcode: "bcr_analyte_barcode"},
	"aliquot":   {path: "tcga_bcr/patient/samples/sample/portions/portion/analytes/analyte/aliquots/aliquot", barcode: "bcr_aliquot_barcode"},
	"drug":      {path: "tcga_bcr/patient/drugs/drug", barcode: "bcr_drug_barcode"},
	"radiation": {path: "tcga_bcr/patient/radiations/radiation", barcode: "bcr_radiation_barcode"},
	"followup":  {path: "tcga_bcr/patient/follow_ups/follow_up", barcode: "bcr_followup_barcode", sequence: true},
}

// ClinicalEntity resolves a subtype name such as "drugs" or "patient" to the
// entity it extracts.
func ClinicalEntity(subtype string) (string, bool) {
	name := strings.ToLower(strings.ReplaceAll(subtype, "_", ""))
	if _, ok := clinicalEntities[name]; ok {
		return name, true
	}
	name = inflector.Singularize(name)
	_, ok := clinicalEntities[name]
	return name, ok
}

// ClinicalEntities lists the supported entity names in sorted order.
func ClinicalEntities() []string {
	out := make([]string, 0, len(clinicalEntities))
	for name := range clinicalEntities {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ClinicalXML extracts the entity named by the pass subtype from BCR clinical
// XML files. Records go to a channel named after the entity.
var ClinicalXML = ExtractorFunc(func(ctx context.Context, f File) error {
	entity, ok := ClinicalEntity(f.Subtype)
	if !ok {
		return fmt.Errorf("unknown clinical entity %q", f.Subtype)
	}
	def := clinicalEntities[entity]

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return err
	}
	root, err := parseXML(data)
	if err != nil {
		f.Errors.Add("XML error: %s: %v", f.Name(), err)
		return nil
	}

	for _, node := range root.find(def.path) {
		key := ""
		for _, c := range node.find(node.name + "/" + def.barcode) {
			key = c.text
		}
		if key == "" {
			f.Errors.Add("Field error: %s has a %s without %s", f.Name(), node.name, def.barcode)
			continue
		}
		rec := map[string]any{}
		if def.sequence {
			if seq, ok := node.attrs["sequence"]; ok {
				rec["sequence"] = map[string]any{"value": seq}
			}
		}
		queries := append([]string{node.name + "/*"}, def.extra...)
		for _, q := range queries {
			for _, field := range node.find(q) {
				if _, ok := field.attrs["xsd_ver"]; !ok {
					continue
				}
				name := field.attrs["preferred_name"]
				if name == "" {
					name = field.name
				}
				rec[name] = map[string]any{"value": field.text}
			}
		}
		if err := emit(f, key, rec, entity); err != nil {
			return err
		}
	}
	return nil
})

// xmlNode is an element of a document decoded by mxj, with children restored
// to document order.
type xmlNode struct {
	name     string
	attrs    map[string]string
	text     string
	seq      int
	children []*xmlNode
}

// parseXML decodes data, skipping any prolog, comments or directives that
// precede the root element.
func parseXML(data []byte) (*xmlNode, error) {
	r := bytes.NewReader(data)
	for {
		m, err := mxj.NewMapXmlSeqReader(r)
		if errors.Is(err, mxj.NoRoot) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for name, v := range m {
			nodes := toNodes(name, v)
			if len(nodes) == 0 {
				break
			}
			return nodes[0], nil
		}
		return nil, errors.New("document has no root element")
	}
}

// toNodes converts an mxj value into nodes; lists of repeated elements yield
// one node per item. Element names lose their namespace prefix.
func toNodes(name string, v any) []*xmlNode {
	name = localName(name)
	switch t := v.(type) {
	case []any:
		var out []*xmlNode
		for _, item := range t {
			out = append(out, toNodes(name, item)...)
		}
		return out
	case map[string]any:
		n := &xmlNode{name: name, attrs: map[string]string{}}
		for k, child := range t {
			switch k {
			case "#seq":
				n.seq, _ = child.(int)
			case "#text":
				n.text = fmt.Sprint(child)
			case "#attr":
				attrs, _ := child.(map[string]any)
				for an, av := range attrs {
					if am, ok := av.(map[string]any); ok {
						n.attrs[an] = fmt.Sprint(am["#text"])
					}
				}
			default:
				if strings.HasPrefix(k, "#") {
					continue
				}
				n.children = append(n.children, toNodes(k, child)...)
			}
		}
		sort.SliceStable(n.children, func(i, j int) bool { return n.children[i].seq < n.children[j].seq })
		return []*xmlNode{n}
	case nil:
		return []*xmlNode{{name: name, attrs: map[string]string{}}}
	default:
		return []*xmlNode{{name: name, attrs: map[string]string{}, text: fmt.Sprint(t)}}
	}
}

// localName strips the namespace prefix of an element name: bio:patient is patient.
func localName(name string) string {
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// find evaluates a slash separated query whose first step must name n. A *
// step matches any child element.
func (n *xmlNode) find(query string) []*xmlNode {
	steps := strings.Split(query, "/")
	if steps[0] != n.name {
		return nil
	}
	nodes := []*xmlNode{n}
	for _, step := range steps[1:] {
		var next []*xmlNode
		for _, cur := range nodes {
			for _, c := range cur.children {
				if step == "*" || c.name == step {
					next = append(next, c)
				}
			}
		}
		nodes = next
	}
	return nodes
}
