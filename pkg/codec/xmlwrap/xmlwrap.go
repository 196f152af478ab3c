// Package xmlwrap is a minimal codec engine. Its infoset wraps the payload
// in base64 chunks under a root element named by the schema:
//
//	<orders><chunk>...</chunk><chunk>...</chunk></orders>
//
// A schema source is an XML document such as
//
//	<schema root="orders" chunk="3072"/>
//
// and the precompiled artifact is its JSON form.
package xmlwrap

import (
	"encoding/base64"
	"encoding/json"
	"encoding/xml"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"infoset_conversion/entity"
)

const (
	artifactVersion = 1
	defaultChunk    = 3072
	maxChunk        = 1 << 20
	chunkElement    = "chunk"
)

var (
	ErrVersionMismatch  = errors.New("precompiled artifact version mismatch")
	ErrForeignProcessor = errors.New("processor was not built by this engine")
)

type Engine struct{}

var _ entity.CodecEngine = Engine{}

func New() Engine {
	return Engine{}
}

type schemaSource struct {
	XMLName xml.Name `xml:"schema"`
	Root    string   `xml:"root,attr"`
	Chunk   int      `xml:"chunk,attr"`
}

type artifact struct {
	Version int    `json:"version"`
	Root    string `json:"root"`
	Chunk   int    `json:"chunk"`
}

func diag(msg string, err error) entity.Diagnostic {
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	return entity.Diagnostic{Message: msg, Cause: err}
}

// Compile reads the schema source at schemaPath.
func (Engine) Compile(schemaPath string) (entity.Processor, []entity.Diagnostic) {
	f, err := os.Open(schemaPath)
	if err != nil {
		return nil, []entity.Diagnostic{diag("open schema", err)}
	}
	defer f.Close()

	var src schemaSource
	if err := xml.NewDecoder(f).Decode(&src); err != nil {
		return nil, []entity.Diagnostic{diag("parse schema", err)}
	}

	p := &Processor{root: src.Root, chunk: src.Chunk}
	if p.chunk == 0 {
		p.chunk = defaultChunk
	}
	if diags := p.validate(); len(diags) > 0 {
		return nil, diags
	}
	return p, nil
}

func (Engine) Reload(r io.Reader) (entity.Processor, error) {
	var a artifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, errors.Wrap(err, "decode artifact")
	}
	if a.Version != artifactVersion {
		return nil, errors.Wrapf(ErrVersionMismatch, "got %d, want %d", a.Version, artifactVersion)
	}

	p := &Processor{root: a.Root, chunk: a.Chunk}
	if diags := p.validate(); len(diags) > 0 {
		return nil, errors.Errorf("invalid artifact: %s", diags[0].Message)
	}
	return p, nil
}

func (Engine) Save(p entity.Processor, w io.Writer) error {
	wp, ok := p.(*Processor)
	if !ok {
		return ErrForeignProcessor
	}
	return json.NewEncoder(w).Encode(artifact{Version: artifactVersion, Root: wp.root, Chunk: wp.chunk})
}

// Processor is immutable once built.
type Processor struct {
	root  string
	chunk int
}

func (p *Processor) validate() []entity.Diagnostic {
	var diags []entity.Diagnostic
	if !isName(p.root) {
		diags = append(diags, diag("root must be an XML name, got \""+p.root+"\"", nil))
	}
	if p.chunk <= 0 || p.chunk > maxChunk {
		diags = append(diags, diag("chunk size out of range", nil))
	}
	return diags
}

func isName(s string) bool {
	if s == "" || strings.HasPrefix(strings.ToLower(s), "xml") {
		return false
	}
	for i, r := range s {
		switch {
		case unicode.IsLetter(r), r == '_':
		case i > 0 && (unicode.IsDigit(r) || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}

func failed(d entity.Diagnostic) entity.Result {
	return entity.Result{Failed: true, Diagnostics: []entity.Diagnostic{d}}
}

// Parse writes the infoset for the bytes read from in.
func (p *Processor) Parse(in io.Reader, out io.Writer) entity.Result {
	if _, err := io.WriteString(out, xml.Header+"<"+p.root+">\n"); err != nil {
		return failed(diag("write infoset", err))
	}

	buf := make([]byte, p.chunk)
	enc := make([]byte, base64.StdEncoding.EncodedLen(p.chunk))
	for {
		n, err := io.ReadFull(in, buf)
		if n > 0 {
			base64.StdEncoding.Encode(enc, buf[:n])
			line := "<" + chunkElement + ">" + string(enc[:base64.StdEncoding.EncodedLen(n)]) + "</" + chunkElement + ">\n"
			if _, werr := io.WriteString(out, line); werr != nil {
				return failed(diag("write infoset", werr))
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return failed(diag("read data", err))
		}
	}

	if _, err := io.WriteString(out, "</"+p.root+">\n"); err != nil {
		return failed(diag("write infoset", err))
	}
	return entity.Result{}
}

// Unparse writes back the bytes held by the infoset read from in.
func (p *Processor) Unparse(in io.Reader, out io.Writer) entity.Result {
	dec := xml.NewDecoder(in)

	started := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return failed(diag("infoset ended before </"+p.root+">", nil))
		}
		if err != nil {
			return failed(diag("read infoset", err))
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if !started {
				if t.Name.Local != p.root {
					return failed(diag("unexpected root element <"+t.Name.Local+">, want <"+p.root+">", nil))
				}
				started = true
				continue
			}
			if t.Name.Local != chunkElement {
				return failed(diag("unexpected element <"+t.Name.Local+">", nil))
			}
			var text string
			if err := dec.DecodeElement(&text, &t); err != nil {
				return failed(diag("read chunk", err))
			}
			data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(text))
			if err != nil {
				return failed(diag("decode chunk", err))
			}
			if _, err := out.Write(data); err != nil {
				return failed(diag("write data", err))
			}
		case xml.EndElement:
			// Only the root can close here; chunks are consumed whole.
			return entity.Result{}
		case xml.CharData:
			if started && len(strings.TrimSpace(string(t))) > 0 {
				return failed(diag("unexpected text in <"+p.root+">", nil))
			}
		}
	}
}
