package statements

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/debtdesk/backoffice/internal/client"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var months = [...]string{
	"Januari", "Februari", "Maret", "April", "Mei", "Juni",
	"Juli", "Agustus", "September", "Oktober", "November", "Desember",
}

// formatDate renders a date the way Indonesian letters do: 19 Oktober 2026.
func formatDate(t time.Time) string {
	return fmt.Sprintf("%d %s %d", t.Day(), months[t.Month()-1], t.Year())
}

// formatRupiah renders whole rupiah with dot thousand separators: Rp 12.500.000.
func formatRupiah(v int64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := strconv.FormatInt(v, 10)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-Rp " + b.String()
	}
	return "Rp " + b.String()
}

// cell escapes characters that would break a markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\n", " ")
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

var closing = map[string]string{
	KindSettlement: "Dengan ini saya mengajukan permohonan keringanan dan penyelesaian atas seluruh kewajiban " +
		"di atas, dan bersedia mengikuti program penyelesaian yang disepakati.",
	KindPowerOfAttorney: "Dengan ini saya memberikan kuasa kepada konsultan yang ditunjuk untuk mewakili saya " +
		"dalam proses negosiasi dengan kreditur di atas.",
	KindGeneral: "Demikian pernyataan ini saya buat dengan sebenar-benarnya dalam keadaan sadar dan tanpa paksaan.",
}

const bodyTemplate = `# SURAT PERNYATAAN

**Nomor: {{.Number}}**

Yang bertanda tangan di bawah ini:

| Data | Keterangan |
|---|---|
| Nama | {{cell .Client.Name}} |
| NIK | {{cell .Client.NIK}} |
| Alamat | {{cell .Client.Address}} |
| Pekerjaan | {{cell .Client.Occupation}} |
| Telepon | {{cell .Client.Phone}} |

Menyatakan bahwa saya memiliki kewajiban kepada kreditur berikut:

| No | Kreditur | Produk | Sisa Kewajiban |
|---:|---|---|---:|
{{range $i, $d := .Client.Creditors}}| {{inc $i}} | {{cell $d.Creditor}} | {{cell $d.Product}} | {{rupiah $d.Outstanding}} |
{{end}}| | **Total** | | **{{rupiah .Total}}** |

{{.Closing}}

{{.Place}}, {{date .Date}}

Yang menyatakan,

&nbsp;

&nbsp;

**{{.Client.Name}}**
`

var tmpl = template.Must(template.New("statement").Funcs(template.FuncMap{
	"cell":   cell,
	"rupiah": formatRupiah,
	"date":   formatDate,
	"inc":    func(i int) int { return i + 1 },
}).Parse(bodyTemplate))

// buildBody fills the letter template for a client.
func buildBody(st *Statement, c *client.Client) (string, error) {
	text, ok := closing[st.Kind]
	if !ok {
		text = closing[KindGeneral]
	}
	var buf bytes.Buffer
	err := tmpl.Execute(&buf, map[string]interface{}{
		"Number":  st.Number,
		"Client":  c,
		"Total":   c.TotalOutstanding(),
		"Closing": text,
		"Place":   st.Place,
		"Date":    st.Date,
	})
	if err != nil {
		return "", fmt.Errorf("fill statement template: %w", err)
	}
	return buf.String(), nil
}

// Raw HTML in bodies is dropped; bodies are editable by users.
var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

const htmlHead = `<!DOCTYPE html>
<html lang="id"><head><meta charset="utf-8"><title>%s</title>
<style>body{font-family:serif;max-width:800px;margin:2em auto}table{border-collapse:collapse;width:100%%}td,th{border:1px solid #444;padding:4px 8px}</style>
</head><body>
`

// RenderHTML converts a markdown body into a standalone HTML page.
func RenderHTML(title, body string) (string, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, htmlHead, template.HTMLEscapeString(title))
	if err := md.Convert([]byte(body), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	buf.WriteString("</body></html>\n")
	return buf.String(), nil
}
