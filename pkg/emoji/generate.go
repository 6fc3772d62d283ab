// Copyright 2024-2026 Aiku AI

//go:build ignore

package main

import (
	"bytes"
	"fmt"
	"go/format"
	"os"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.mau.fi/util/exerrors"
	"go.mau.fi/util/unicodeurls"
	"go.mau.fi/util/variationselector"
)

func main() {
	sequences := unicodeurls.ReadDataFileList(unicodeurls.EmojiTest, func(line string) (string, bool) {
		parts := strings.SplitN(line, ";", 2)
		if len(parts) != 2 {
			return "", false
		}
		status, _, _ := strings.Cut(strings.TrimSpace(parts[1]), " ")
		if status != "fully-qualified" && status != "component" {
			return "", false
		}
		return unicodeurls.ParseHex(strings.Fields(parts[0])), true
	})
	exerrors.PanicIfNotNil(os.WriteFile("emojis.txt", []byte(strings.Join(sequences, "\n")+"\n"), 0644))

	type shape struct {
		length int
		lead   rune
	}
	positions := make(map[shape][]int)
	examples := make(map[shape]string)
	conflicting := make(map[shape]bool)
	for _, seq := range sequences {
		if !strings.Contains(seq, variationselector.VS16) {
			continue
		}
		stripped := variationselector.Remove(seq)
		var at []int
		for rest, offset := seq, 0; rest != ""; {
			if strings.HasPrefix(rest, variationselector.VS16) {
				at = append(at, offset)
				rest = rest[len(variationselector.VS16):]
				continue
			}
			_, size := utf8.DecodeRuneInString(rest)
			offset += size
			rest = rest[size:]
		}
		if len(at) == 1 && at[0] == len(stripped) {
			continue
		}
		lead, _ := utf8.DecodeRuneInString(stripped)
		key := shape{len(stripped), lead}
		if prev, ok := positions[key]; ok && !slices.Equal(prev, at) {
			conflicting[key] = true
			continue
		} else if !ok {
			examples[key] = seq
		}
		positions[key] = at
	}
	keys := make([]shape, 0, len(positions))
	for key := range positions {
		if conflicting[key] {
			fmt.Fprintf(os.Stderr, "skipping ambiguous shape %d/%U\n", key.length, key.lead)
			continue
		}
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b shape) int {
		if a.length != b.length {
			return a.length - b.length
		}
		return int(a.lead - b.lead)
	})

	var buf bytes.Buffer
	buf.WriteString("// Code generated by generate.go; DO NOT EDIT.\n\npackage emoji\n\n")
	buf.WriteString("// vs16Positions maps the byte length and leading rune of a sequence with every\n")
	buf.WriteString("// VS16 removed to the byte offsets, within the stripped sequence, where the\n")
	buf.WriteString("// canonical form carries a VS16. Sequences whose only VS16 is trailing are\n")
	buf.WriteString("// left out.\n")
	buf.WriteString("var vs16Positions = map[vs16Key][]int{\n")
	for _, key := range keys {
		offsets := make([]string, len(positions[key]))
		for i, offset := range positions[key] {
			offsets[i] = strconv.Itoa(offset)
		}
		lead := fmt.Sprintf("'\\U%08x'", key.lead)
		if key.lead < utf8.RuneSelf {
			lead = fmt.Sprintf("'%c'", key.lead)
		}
		fmt.Fprintf(&buf, "\t{%d, %s}: {%s}, // %s\n", key.length, lead, strings.Join(offsets, ", "), examples[key])
	}
	buf.WriteString("}\n")
	exerrors.PanicIfNotNil(os.WriteFile("heuristics.go", exerrors.Must(format.Source(buf.Bytes())), 0644))
}
