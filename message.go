package pagequery

import (
	"encoding/json"

	"github.com/chromedp/cdproto/cdp"
	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
)

// MethodType is a session method.
type MethodType string

// Session methods.
const (
	MethodQuerySelector        MethodType = "querySelector"
	MethodQuerySelectorAll     MethodType = "querySelectorAll"
	MethodWaitForSelector      MethodType = "waitForSelector"
	MethodWaitForElementStates MethodType = "waitForElementStates"
	MethodCheckElementState    MethodType = "checkElementState"
	MethodFill                 MethodType = "fill"
	MethodSelectOptions        MethodType = "selectOptions"
	MethodSetInputFiles        MethodType = "setInputFiles"
	MethodSelectText           MethodType = "selectText"
	MethodFocusNode            MethodType = "focusNode"
	MethodDispatchEvent        MethodType = "dispatchEvent"
	MethodScrollIntoView       MethodType = "scrollIntoView"
	MethodPreviewNode          MethodType = "previewNode"
	MethodTypeText             MethodType = "type"
	MethodDescribeNode         MethodType = "describeNode"
	MethodBoundingBox          MethodType = "boundingBox"
	MethodCheckHitTargetAt     MethodType = "checkHitTargetAt"
	MethodDeepElementFromPoint MethodType = "deepElementFromPoint"
	MethodElementBorderWidth   MethodType = "getElementBorderWidth"
	MethodDocumentElement      MethodType = "getDocumentElement"
	MethodReleaseNodes         MethodType = "releaseNodes"
)

// Request is a session request.
type Request struct {
	ID     int64      `json:"id"`
	Method MethodType `json:"method"`
	Params Params     `json:"params"`
}

// Params holds the parameters of all session methods. Each method only
// reads the fields it needs.
type Params struct {
	Selector       string                 `json:"selector,omitempty"`
	Root           cdp.NodeID             `json:"root,omitempty"`
	Node           cdp.NodeID             `json:"node,omitempty"`
	Strict         bool                   `json:"strict,omitempty"`
	State          string                 `json:"state,omitempty"`
	States         []string               `json:"states,omitempty"`
	Polling        string                 `json:"polling,omitempty"`
	Interval       int64                  `json:"interval,omitempty"` // ms
	Timeout        *int64                 `json:"timeout,omitempty"`  // ms
	Value          string                 `json:"value,omitempty"`
	Options        []OptionParam          `json:"options,omitempty"`
	Files          []FilePayload          `json:"files,omitempty"`
	Type           string                 `json:"type,omitempty"`
	EventInit      map[string]interface{} `json:"eventInit,omitempty"`
	Block          string                 `json:"block,omitempty"`
	Inline         string                 `json:"inline,omitempty"`
	Text           string                 `json:"text,omitempty"`
	ResetSelection bool                   `json:"resetSelection,omitempty"`
	Depth          int64                  `json:"depth,omitempty"`
	X              float64                `json:"x,omitempty"`
	Y              float64                `json:"y,omitempty"`
}

// OptionParam is the wire form of a SelectOption.
type OptionParam struct {
	Value *string    `json:"value,omitempty"`
	Label *string    `json:"label,omitempty"`
	Index *int64     `json:"index,omitempty"`
	Node  cdp.NodeID `json:"node,omitempty"`
}

// Response is a session response. Error tags are results; only thrown
// errors, such as timeouts and strict mode violations, are set in Error.
type Response struct {
	ID     int64               `json:"id"`
	Result easyjson.RawMessage `json:"result,omitempty"`
	Error  *ResponseError      `json:"error,omitempty"`
}

// ResponseError is a thrown error.
type ResponseError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Error satisfies the error interface.
func (e *ResponseError) Error() string {
	return e.Kind + ": " + e.Message
}

// MarshalJSON satisfies json.Marshaler.
func (v Request) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	v.MarshalEasyJSON(&w)
	return w.Buffer.BuildBytes(), w.Error
}

// MarshalEasyJSON satisfies easyjson.Marshaler.
func (v Request) MarshalEasyJSON(out *jwriter.Writer) {
	out.RawString(`{"id":`)
	out.Int64(v.ID)
	out.RawString(`,"method":`)
	out.String(string(v.Method))
	out.RawString(`,"params":`)
	v.Params.MarshalEasyJSON(out)
	out.RawByte('}')
}

// UnmarshalJSON satisfies json.Unmarshaler.
func (v *Request) UnmarshalJSON(data []byte) error {
	r := jlexer.Lexer{Data: data}
	v.UnmarshalEasyJSON(&r)
	return r.Error()
}

// UnmarshalEasyJSON satisfies easyjson.Unmarshaler.
func (v *Request) UnmarshalEasyJSON(in *jlexer.Lexer) {
	isTopLevel := in.IsStart()
	if in.IsNull() {
		if isTopLevel {
			in.Consumed()
		}
		in.Skip()
		return
	}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "id":
			v.ID = in.Int64()
		case "method":
			v.Method = MethodType(in.String())
		case "params":
			v.Params.UnmarshalEasyJSON(in)
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

// MarshalEasyJSON satisfies easyjson.Marshaler.
func (v Params) MarshalEasyJSON(out *jwriter.Writer) {
	out.RawByte('{')
	first := true
	field := func(name string) {
		if !first {
			out.RawByte(',')
		}
		first = false
		out.String(name)
		out.RawByte(':')
	}
	if v.Selector != "" {
		field("selector")
		out.String(v.Selector)
	}
	if v.Root != 0 {
		field("root")
		out.Int64(int64(v.Root))
	}
	if v.Node != 0 {
		field("node")
		out.Int64(int64(v.Node))
	}
	if v.Strict {
		field("strict")
		out.Bool(v.Strict)
	}
	if v.State != "" {
		field("state")
		out.String(v.State)
	}
	if len(v.States) != 0 {
		field("states")
		out.RawByte('[')
		for i, s := range v.States {
			if i > 0 {
				out.RawByte(',')
			}
			out.String(s)
		}
		out.RawByte(']')
	}
	if v.Polling != "" {
		field("polling")
		out.String(v.Polling)
	}
	if v.Interval != 0 {
		field("interval")
		out.Int64(v.Interval)
	}
	if v.Timeout != nil {
		field("timeout")
		out.Int64(*v.Timeout)
	}
	if v.Value != "" {
		field("value")
		out.String(v.Value)
	}
	if len(v.Options) != 0 {
		field("options")
		out.RawByte('[')
		for i, o := range v.Options {
			if i > 0 {
				out.RawByte(',')
			}
			o.MarshalEasyJSON(out)
		}
		out.RawByte(']')
	}
	if len(v.Files) != 0 {
		field("files")
		out.RawByte('[')
		for i, f := range v.Files {
			if i > 0 {
				out.RawByte(',')
			}
			marshalFilePayload(out, f)
		}
		out.RawByte(']')
	}
	if v.Type != "" {
		field("type")
		out.String(v.Type)
	}
	if len(v.EventInit) != 0 {
		field("eventInit")
		out.Raw(json.Marshal(v.EventInit))
	}
	if v.Block != "" {
		field("block")
		out.String(v.Block)
	}
	if v.Inline != "" {
		field("inline")
		out.String(v.Inline)
	}
	if v.Text != "" {
		field("text")
		out.String(v.Text)
	}
	if v.ResetSelection {
		field("resetSelection")
		out.Bool(v.ResetSelection)
	}
	if v.Depth != 0 {
		field("depth")
		out.Int64(v.Depth)
	}
	if v.X != 0 {
		field("x")
		out.Float64(v.X)
	}
	if v.Y != 0 {
		field("y")
		out.Float64(v.Y)
	}
	out.RawByte('}')
}

// UnmarshalEasyJSON satisfies easyjson.Unmarshaler.
func (v *Params) UnmarshalEasyJSON(in *jlexer.Lexer) {
	isTopLevel := in.IsStart()
	if in.IsNull() {
		if isTopLevel {
			in.Consumed()
		}
		in.Skip()
		return
	}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "selector":
			v.Selector = in.String()
		case "root":
			v.Root = cdp.NodeID(in.Int64())
		case "node":
			v.Node = cdp.NodeID(in.Int64())
		case "strict":
			v.Strict = in.Bool()
		case "state":
			v.State = in.String()
		case "states":
			in.Delim('[')
			v.States = v.States[:0]
			for !in.IsDelim(']') {
				v.States = append(v.States, in.String())
				in.WantComma()
			}
			in.Delim(']')
		case "polling":
			v.Polling = in.String()
		case "interval":
			v.Interval = in.Int64()
		case "timeout":
			t := in.Int64()
			v.Timeout = &t
		case "value":
			v.Value = in.String()
		case "options":
			in.Delim('[')
			for !in.IsDelim(']') {
				var o OptionParam
				o.UnmarshalEasyJSON(in)
				v.Options = append(v.Options, o)
				in.WantComma()
			}
			in.Delim(']')
		case "files":
			in.Delim('[')
			for !in.IsDelim(']') {
				v.Files = append(v.Files, unmarshalFilePayload(in))
				in.WantComma()
			}
			in.Delim(']')
		case "type":
			v.Type = in.String()
		case "eventInit":
			if m, ok := in.Interface().(map[string]interface{}); ok {
				v.EventInit = m
			}
		case "block":
			v.Block = in.String()
		case "inline":
			v.Inline = in.String()
		case "text":
			v.Text = in.String()
		case "resetSelection":
			v.ResetSelection = in.Bool()
		case "depth":
			v.Depth = in.Int64()
		case "x":
			v.X = in.Float64()
		case "y":
			v.Y = in.Float64()
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

// MarshalEasyJSON satisfies easyjson.Marshaler.
func (v OptionParam) MarshalEasyJSON(out *jwriter.Writer) {
	out.RawByte('{')
	first := true
	field := func(name string) {
		if !first {
			out.RawByte(',')
		}
		first = false
		out.String(name)
		out.RawByte(':')
	}
	if v.Value != nil {
		field("value")
		out.String(*v.Value)
	}
	if v.Label != nil {
		field("label")
		out.String(*v.Label)
	}
	if v.Index != nil {
		field("index")
		out.Int64(*v.Index)
	}
	if v.Node != 0 {
		field("node")
		out.Int64(int64(v.Node))
	}
	out.RawByte('}')
}

// UnmarshalEasyJSON satisfies easyjson.Unmarshaler.
func (v *OptionParam) UnmarshalEasyJSON(in *jlexer.Lexer) {
	if in.IsNull() {
		in.Skip()
		return
	}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "value":
			s := in.String()
			v.Value = &s
		case "label":
			s := in.String()
			v.Label = &s
		case "index":
			i := in.Int64()
			v.Index = &i
		case "node":
			v.Node = cdp.NodeID(in.Int64())
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
}

func marshalFilePayload(out *jwriter.Writer, f FilePayload) {
	out.RawString(`{"name":`)
	out.String(f.Name)
	out.RawString(`,"mimeType":`)
	out.String(f.MimeType)
	out.RawString(`,"buffer":`)
	out.String(f.Buffer)
	if f.LastModifiedMs != 0 {
		out.RawString(`,"lastModifiedMs":`)
		out.Int64(f.LastModifiedMs)
	}
	out.RawByte('}')
}

func unmarshalFilePayload(in *jlexer.Lexer) FilePayload {
	var f FilePayload
	if in.IsNull() {
		in.Skip()
		return f
	}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "name":
			f.Name = in.String()
		case "mimeType":
			f.MimeType = in.String()
		case "buffer":
			f.Buffer = in.String()
		case "lastModifiedMs":
			f.LastModifiedMs = in.Int64()
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	return f
}

// MarshalJSON satisfies json.Marshaler.
func (v Response) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	v.MarshalEasyJSON(&w)
	return w.Buffer.BuildBytes(), w.Error
}

// MarshalEasyJSON satisfies easyjson.Marshaler.
func (v Response) MarshalEasyJSON(out *jwriter.Writer) {
	out.RawString(`{"id":`)
	out.Int64(v.ID)
	if len(v.Result) != 0 {
		out.RawString(`,"result":`)
		out.Raw(v.Result, nil)
	}
	if v.Error != nil {
		out.RawString(`,"error":{"kind":`)
		out.String(v.Error.Kind)
		out.RawString(`,"message":`)
		out.String(v.Error.Message)
		out.RawByte('}')
	}
	out.RawByte('}')
}

// UnmarshalJSON satisfies json.Unmarshaler.
func (v *Response) UnmarshalJSON(data []byte) error {
	r := jlexer.Lexer{Data: data}
	v.UnmarshalEasyJSON(&r)
	return r.Error()
}

// UnmarshalEasyJSON satisfies easyjson.Unmarshaler.
func (v *Response) UnmarshalEasyJSON(in *jlexer.Lexer) {
	isTopLevel := in.IsStart()
	if in.IsNull() {
		if isTopLevel {
			in.Consumed()
		}
		in.Skip()
		return
	}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if key == "result" {
			// a null result is kept as is
			v.Result = append(easyjson.RawMessage(nil), in.Raw()...)
			in.WantComma()
			continue
		}
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "id":
			v.ID = in.Int64()
		case "error":
			v.Error = new(ResponseError)
			in.Delim('{')
			for !in.IsDelim('}') {
				key := in.UnsafeFieldName(false)
				in.WantColon()
				switch key {
				case "kind":
					v.Error.Kind = in.String()
				case "message":
					v.Error.Message = in.String()
				default:
					in.SkipRecursive()
				}
				in.WantComma()
			}
			in.Delim('}')
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}
