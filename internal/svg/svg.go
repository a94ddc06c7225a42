// Package svg writes a scene as a standalone SVG document.
package svg

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/pkh-dashboard/peta/internal/classify"
	"github.com/pkh-dashboard/peta/internal/scene"
)

// Style holds presentation colours and sizes. Fill colours come from the
// scene and are not styled here.
type Style struct {
	Background     string  `yaml:"background"`
	Stroke         string  `yaml:"stroke"`
	StrokeWidth    float64 `yaml:"stroke_width"`
	LabelColor     string  `yaml:"label_color"`
	LabelHalo      string  `yaml:"label_halo"`
	LabelHaloWidth float64 `yaml:"label_halo_width"`
	FontSize       float64 `yaml:"font_size"`
	FontFamily     string  `yaml:"font_family"`
	ShowLabels     bool    `yaml:"show_labels"`
	ShowLegend     bool    `yaml:"show_legend"`
}

// legendHeight is the band added below the map when the legend is shown.
const legendHeight = 40.0

// DefaultStyle matches the dashboard map page.
func DefaultStyle() Style {
	return Style{
		Background:     "#9ec5e6",
		Stroke:         "#9b6a4a",
		StrokeWidth:    1.2,
		LabelColor:     "#2d2925",
		LabelHalo:      "#fff8ef",
		LabelHaloWidth: 3,
		FontSize:       10,
		FontFamily:     "sans-serif",
		ShowLabels:     true,
		ShowLegend:     true,
	}
}

// Render returns the SVG document for s. transform is applied to the group
// holding paths and labels; pass "" for none.
func Render(s scene.Scene, transform string, style Style) []byte {
	var b bytes.Buffer
	w, h := s.Width, s.Height
	total := h
	if style.ShowLegend {
		total += legendHeight
	}

	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%s" height="%s" viewBox="0 0 %s %s">`,
		num(w), num(total), num(w), num(total))
	b.WriteByte('\n')
	fmt.Fprintf(&b, `<rect width="%s" height="%s" rx="12" fill="%s"/>`, num(w), num(h), attr(style.Background))
	b.WriteByte('\n')

	if s.Fallback || len(s.Regions) == 0 {
		msg := s.Message
		if msg == "" {
			msg = scene.DefaultFallbackMessage
		}
		fmt.Fprintf(&b, `<text class="map-fallback" x="%s" y="%s" text-anchor="middle" font-size="%s" font-family="%s" fill="%s">%s</text>`,
			num(w/2), num(h/2), num(style.FontSize*1.4), attr(style.FontFamily), attr(style.LabelColor), html.EscapeString(msg))
		b.WriteByte('\n')
	} else {
		writeMap(&b, s, transform, style)
	}

	if style.ShowLegend {
		writeLegend(&b, s.Legend, w, h, style)
	}
	b.WriteString("</svg>\n")
	return b.Bytes()
}

// Write renders s to out.
func Write(out io.Writer, s scene.Scene, transform string, style Style) error {
	if _, err := out.Write(Render(s, transform, style)); err != nil {
		return eris.Wrap(err, "svg: write document")
	}
	return nil
}

func writeMap(b *bytes.Buffer, s scene.Scene, transform string, style Style) {
	b.WriteString("<g")
	if transform != "" {
		fmt.Fprintf(b, ` transform="%s"`, attr(transform))
	}
	b.WriteString(">\n")

	for _, r := range s.Regions {
		fmt.Fprintf(b, `<path data-code="%d" d="%s" fill="%s" stroke="%s" stroke-width="%s" vector-effect="non-scaling-stroke"><title>%s</title></path>`,
			r.Code, attr(r.Path), attr(r.Fill), attr(style.Stroke), num(style.StrokeWidth), html.EscapeString(r.Label))
		b.WriteByte('\n')
	}

	if style.ShowLabels {
		for _, r := range s.Regions {
			fmt.Fprintf(b, `<text x="%s" y="%s" text-anchor="middle" font-size="%s" font-family="%s" fill="%s" stroke="%s" stroke-width="%s" stroke-linecap="round" stroke-linejoin="round" paint-order="stroke" pointer-events="none">%s</text>`,
				num(r.Centroid.X), num(r.Centroid.Y), num(style.FontSize), attr(style.FontFamily),
				attr(style.LabelColor), attr(style.LabelHalo), num(style.LabelHaloWidth), html.EscapeString(r.Label))
			b.WriteByte('\n')
		}
	}
	b.WriteString("</g>\n")
}

func writeLegend(b *bytes.Buffer, l classify.Legend, w, h float64, style Style) {
	barX, barW := 40.0, w-80
	barY := h + 14
	b.WriteString(`<defs><linearGradient id="legend-ramp" x1="0" x2="1" y1="0" y2="0">`)
	n := len(l.Colors)
	for i, c := range l.Colors {
		offset := 0.0
		if n > 1 {
			offset = float64(i) / float64(n-1)
		}
		fmt.Fprintf(b, `<stop offset="%s" stop-color="%s"/>`, num(offset), attr(c))
	}
	b.WriteString("</linearGradient></defs>\n")

	fmt.Fprintf(b, `<g class="legend" font-size="%s" font-family="%s" fill="%s">`,
		num(style.FontSize), attr(style.FontFamily), attr(style.LabelColor))
	fmt.Fprintf(b, `<text x="%s" y="%s" text-anchor="end">%s</text>`, num(barX-6), num(barY+9), html.EscapeString(l.LowLabel))
	fmt.Fprintf(b, `<rect x="%s" y="%s" width="%s" height="12" rx="6" fill="url(#legend-ramp)"/>`, num(barX), num(barY), num(barW))
	fmt.Fprintf(b, `<text x="%s" y="%s">%s</text>`, num(barX+barW+6), num(barY+9), html.EscapeString(l.HighLabel))
	b.WriteString("</g>\n")
}

func attr(s string) string {
	return html.EscapeString(s)
}

func num(v float64) string {
	s := strconv.FormatFloat(v, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}
