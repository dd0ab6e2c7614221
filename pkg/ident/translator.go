// Package ident resolves raw experimental identifiers to canonical sample
// identifiers.
package ident

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Translator maps a raw identifier to a canonical one. ok is false when the
// identifier must be left out of every output.
type Translator interface {
	Translate(raw string) (id string, ok bool)
}

// Table is an in-memory raw -> mapped lookup, typically UUID -> barcode.
type Table map[string]string

// LoadTable reads a two-column tab separated file. Lines that do not have
// exactly two fields are ignored; later lines override earlier ones.
func LoadTable(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open translation table: %w", err)
	}
	defer f.Close()

	out := Table{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		fields := strings.Split(strings.TrimRight(scanner.Text(), " \t\r\n"), "\t")
		if len(fields) == 2 {
			out[fields[0]] = fields[1]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read translation table %s: %w", path, err)
	}
	return out, nil
}

// Lookup passes raw through unless the table holds a mapping for it.
func (t Table) Lookup(raw string) string {
	if mapped, ok := t[raw]; ok {
		return mapped
	}
	return raw
}

// Passthrough translates through an optional table and never excludes.
type Passthrough struct {
	Table Table
}

func (p Passthrough) Translate(raw string) (string, bool) {
	return p.Table.Lookup(raw), true
}

// normalTissue matches barcodes whose sample type code starts with 1 (normal tissue).
var normalTissue = regexp.MustCompile(`^TCGA-..-....-1`)

// Germline wraps another Translator and drops normal-tissue barcodes.
type Germline struct {
	Next Translator
}

func (g Germline) Translate(raw string) (string, bool) {
	id, ok := g.Next.Translate(raw)
	if !ok {
		return "", false
	}
	if normalTissue.MatchString(id) {
		return "", false
	}
	return id, true
}

// IsNormalTissue reports whether a barcode names a normal-tissue sample.
func IsNormalTissue(barcode string) bool {
	return normalTissue.MatchString(barcode)
}
