// Package meta builds the JSON metadata documents attached to every artifact.
package meta

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"reflect"
)

// Document is a JSON-shaped metadata mapping.
type Document = map[string]any

// Merge returns the union of x and y without modifying or aliasing either.
// Conflicting nested mappings merge recursively; any other conflict is won by y.
func Merge(x, y Document) Document {
	out := make(Document, len(x)+len(y))
	for k, v := range x {
		out[k] = cloneValue(v)
	}
	for k, v := range y {
		cur, ok := out[k]
		if !ok {
			out[k] = cloneValue(v)
			continue
		}
		if reflect.DeepEqual(cur, v) {
			continue
		}
		curMap, curIsMap := asDocument(cur)
		vMap, vIsMap := asDocument(v)
		if curIsMap && vIsMap {
			out[k] = Merge(curMap, vMap)
			continue
		}
		out[k] = cloneValue(v)
	}
	return out
}

func asDocument(v any) (Document, bool) {
	switch t := v.(type) {
	case Document:
		return t, true
	case map[string]string:
		out := make(Document, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out, true
	}
	return nil, false
}

// Clone returns a deep copy of nested documents and slices.
func Clone(d Document) Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Document:
		return Clone(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}

// Digest returns the hex md5 of the file at path.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", path, err)
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("digest %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Annotations returns the "annotations" sub-document of d, creating it when absent.
func Annotations(d Document) Document {
	switch a := d["annotations"].(type) {
	case Document:
		return a
	}
	a := Document{}
	d["annotations"] = a
	return a
}
