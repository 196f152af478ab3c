package entity

import "io"

// Diagnostic is one message reported by the codec engine.
type Diagnostic struct {
	Message string
	Cause   error
}

type Result struct {
	Failed      bool
	Diagnostics []Diagnostic
}

func (r Result) IsError() bool {
	return r.Failed
}

// Processor is a compiled schema. It is immutable and may be shared by
// concurrent transforms.
type Processor interface {
	Parse(in io.Reader, out io.Writer) Result
	Unparse(in io.Reader, out io.Writer) Result
}

// CodecEngine builds processors, either from schema source on local disk
// or from a precompiled artifact.
type CodecEngine interface {
	Compile(schemaPath string) (Processor, []Diagnostic)
	Reload(r io.Reader) (Processor, error)
	Save(p Processor, w io.Writer) error
}
