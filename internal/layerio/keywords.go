package layerio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
)

// WriteKeywords writes one "key: value" or bare "key" line per keyword, in order.
// Colons are not allowed inside keys or values.
func WriteKeywords(w io.Writer, kw *model.Keywords) error {
	bw := bufio.NewWriter(w)
	for _, k := range kw.Keys() {
		if strings.Contains(k, ":") {
			return fmt.Errorf("keyword %q must not contain ':'", k)
		}
		v, ok := kw.Get(k)
		if !ok {
			if _, err := fmt.Fprintln(bw, k); err != nil {
				return err
			}
			continue
		}
		if strings.Contains(v, ":") {
			return fmt.Errorf("value %q of keyword %q must not contain ':'", v, k)
		}
		if strings.ContainsAny(v, "\r\n") {
			return fmt.Errorf("value of keyword %q must be a single line", k)
		}
		if _, err := fmt.Fprintf(bw, "%s: %s\n", k, v); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadKeywords parses the format written by WriteKeywords. Blank lines and
// lines starting with '#' are skipped.
func ReadKeywords(r io.Reader) (*model.Keywords, error) {
	kw := model.NewKeywords()
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, found := strings.Cut(line, ":")
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("line %d: empty keyword", n)
		}
		if !found {
			kw.SetBare(key)
			continue
		}
		val = strings.TrimSpace(val)
		if strings.Contains(val, ":") {
			return nil, fmt.Errorf("line %d: value of keyword %q contains ':'", n, key)
		}
		kw.Set(key, val)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read keywords: %w", err)
	}
	return kw, nil
}

func writeKeywordsFile(path string, kw *model.Keywords) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteKeywords(f, kw); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// readKeywordsFile returns empty keywords when path does not exist.
func readKeywordsFile(path string) (*model.Keywords, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return model.NewKeywords(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	kw, err := ReadKeywords(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return kw, nil
}
