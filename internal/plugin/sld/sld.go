// Package sld renders classified styles as Styled Layer Descriptor documents.
package sld

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"text/template"

	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
)

// Rule colours features whose Field value lies in [Min, Max). A nil bound is open.
type Rule struct {
	Title  string
	Min    *float64
	Max    *float64
	Fill   string
	Stroke string
}

type Style struct {
	Name     string
	Field    string
	Geometry model.GeometryKind
	Rules    []Rule
}

// Bound is a helper for building rules from literals.
func Bound(v float64) *float64 { return &v }

// Classes builds one rule per interval between consecutive edges, open at both
// ends, with the given titles and colours.
func Classes(edges []float64, titles, colours []string) ([]Rule, error) {
	n := len(edges) + 1
	if len(titles) != n || len(colours) != n {
		return nil, fmt.Errorf("%d edges need %d titles and colours, got %d and %d", len(edges), n, len(titles), len(colours))
	}
	rules := make([]Rule, n)
	for i := range rules {
		r := Rule{Title: titles[i], Fill: colours[i]}
		if i > 0 {
			r.Min = Bound(edges[i-1])
		}
		if i < len(edges) {
			r.Max = Bound(edges[i])
		}
		rules[i] = r
	}
	return rules, nil
}

var colourPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

func (s Style) Validate() error {
	if s.Field == "" {
		return fmt.Errorf("style %q has no attribute field", s.Name)
	}
	if len(s.Rules) == 0 {
		return fmt.Errorf("style %q has no rules", s.Name)
	}
	for i, r := range s.Rules {
		if !colourPattern.MatchString(r.Fill) {
			return fmt.Errorf("style %q rule %d: invalid fill colour %q", s.Name, i, r.Fill)
		}
		if r.Stroke != "" && !colourPattern.MatchString(r.Stroke) {
			return fmt.Errorf("style %q rule %d: invalid stroke colour %q", s.Name, i, r.Stroke)
		}
		if r.Min != nil && r.Max != nil && !(*r.Min < *r.Max) {
			return fmt.Errorf("style %q rule %d: empty interval [%v, %v)", s.Name, i, *r.Min, *r.Max)
		}
	}
	return nil
}

// Render returns the SLD document.
func (s Style) Render() (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := doc.Execute(&buf, s); err != nil {
		return "", fmt.Errorf("render style %q: %w", s.Name, err)
	}
	return buf.String(), nil
}

func escape(s string) (string, error) {
	var buf bytes.Buffer
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func num(f *float64) string { return strconv.FormatFloat(*f, 'f', -1, 64) }

var doc = template.Must(template.New("sld").Funcs(template.FuncMap{
	"esc": escape,
	"num": num,
}).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<sld:StyledLayerDescriptor xmlns="http://www.opengis.net/sld" xmlns:sld="http://www.opengis.net/sld" xmlns:ogc="http://www.opengis.net/ogc" xmlns:gml="http://www.opengis.net/gml" version="1.0.0">
  <sld:NamedLayer>
    <sld:Name>{{esc .Name}}</sld:Name>
    <sld:UserStyle>
      <sld:Name>{{esc .Name}}</sld:Name>
      <sld:FeatureTypeStyle>
{{- $field := .Field}}{{$geom := .Geometry}}
{{- range .Rules}}
        <sld:Rule>
          <sld:Name>{{esc .Title}}</sld:Name>
          <sld:Title>{{esc .Title}}</sld:Title>
{{- if or .Min .Max}}
          <ogc:Filter>
{{- if and .Min .Max}}
            <ogc:And>
              <ogc:PropertyIsGreaterThanOrEqualTo><ogc:PropertyName>{{esc $field}}</ogc:PropertyName><ogc:Literal>{{num .Min}}</ogc:Literal></ogc:PropertyIsGreaterThanOrEqualTo>
              <ogc:PropertyIsLessThan><ogc:PropertyName>{{esc $field}}</ogc:PropertyName><ogc:Literal>{{num .Max}}</ogc:Literal></ogc:PropertyIsLessThan>
            </ogc:And>
{{- else if .Min}}
            <ogc:PropertyIsGreaterThanOrEqualTo><ogc:PropertyName>{{esc $field}}</ogc:PropertyName><ogc:Literal>{{num .Min}}</ogc:Literal></ogc:PropertyIsGreaterThanOrEqualTo>
{{- else}}
            <ogc:PropertyIsLessThan><ogc:PropertyName>{{esc $field}}</ogc:PropertyName><ogc:Literal>{{num .Max}}</ogc:Literal></ogc:PropertyIsLessThan>
{{- end}}
          </ogc:Filter>
{{- end}}
{{- if eq (print $geom) "point"}}
          <sld:PointSymbolizer>
            <sld:Graphic>
              <sld:Mark>
                <sld:WellKnownName>circle</sld:WellKnownName>
                <sld:Fill><sld:CssParameter name="fill">{{.Fill}}</sld:CssParameter></sld:Fill>
              </sld:Mark>
              <sld:Size>8</sld:Size>
            </sld:Graphic>
          </sld:PointSymbolizer>
{{- else}}
          <sld:PolygonSymbolizer>
            <sld:Fill><sld:CssParameter name="fill">{{.Fill}}</sld:CssParameter></sld:Fill>
{{- if .Stroke}}
            <sld:Stroke><sld:CssParameter name="stroke">{{.Stroke}}</sld:CssParameter></sld:Stroke>
{{- end}}
          </sld:PolygonSymbolizer>
{{- end}}
        </sld:Rule>
{{- end}}
      </sld:FeatureTypeStyle>
    </sld:UserStyle>
  </sld:NamedLayer>
</sld:StyledLayerDescriptor>
`))
