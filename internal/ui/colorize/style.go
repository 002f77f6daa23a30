package colorize

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
)

// TriageDark is the chroma style used for report output.
var TriageDark = styles.Register(chroma.MustNewStyle("triage-dark", chroma.StyleEntries{
	chroma.Text:       "#D4D4D4",
	chroma.Background: "bg:#1e1e1e",

	// object keys
	chroma.NameTag:       "#9CDCFE",
	chroma.NameAttribute: "#9CDCFE",

	chroma.Keyword:         "#569CD6", // true/false
	chroma.KeywordConstant: "#569CD6", // null

	chroma.LiteralNumber:        "#FF5F87",
	chroma.LiteralNumberHex:     "#FF5F87",
	chroma.LiteralNumberInteger: "#FF5F87",
	chroma.LiteralNumberFloat:   "#FF5F87",

	chroma.String:       "#EACD53",
	chroma.StringDouble: "#EACD53",

	chroma.Punctuation: "#858585",
	chroma.Operator:    "#858585",
}))
