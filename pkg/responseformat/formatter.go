// Package responseformat encodes values as JSON or MessagePack for files and HTTP responses.
package responseformat

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Format names an encoding
type Format string

const (
	JSON    Format = "json"
	MsgPack Format = "msgpack"
)

// ParseFormat maps a name to a Format. Empty means JSON.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSON, nil
	case "msgpack", "messagepack":
		return MsgPack, nil
	default:
		return "", fmt.Errorf("unknown format %q", name)
	}
}

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	if f == MsgPack {
		return "application/x-msgpack"
	}
	return "application/json"
}

// Encode writes data to w in format. MessagePack uses the json struct tags so both
// encodings share field names.
func Encode(w io.Writer, format Format, data any) error {
	switch format {
	case MsgPack:
		encoder := msgpack.NewEncoder(w)
		encoder.SetCustomStructTag("json")
		return encoder.Encode(data)
	case JSON, "":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(data)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// Decode reads data from r in format
func Decode(r io.Reader, format Format, data any) error {
	switch format {
	case MsgPack:
		decoder := msgpack.NewDecoder(r)
		decoder.SetCustomStructTag("json")
		return decoder.Decode(data)
	case JSON, "":
		return json.NewDecoder(r).Decode(data)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// Formatter handles encoding and writing responses in JSON or MessagePack format
type Formatter struct{}

// NewFormatter creates a new response formatter
func NewFormatter() *Formatter {
	return &Formatter{}
}

// WriteResponse writes the response in the appropriate format based on the query parameter.
// JSON is the default format. MessagePack is used when format=msgpack is specified.
func (f *Formatter) WriteResponse(w http.ResponseWriter, req *http.Request, data any, headers map[string]string) error {
	for k, v := range headers {
		w.Header().Set(k, v)
	}
	return f.write(w, req, 0, data)
}

// WriteStatus writes data like WriteResponse with an explicit status code
func (f *Formatter) WriteStatus(w http.ResponseWriter, req *http.Request, status int, data any) error {
	return f.write(w, req, status, data)
}

// WriteError writes {"error": message} with the given status code
func (f *Formatter) WriteError(w http.ResponseWriter, req *http.Request, status int, message string) error {
	return f.write(w, req, status, map[string]string{"error": message})
}

func (f *Formatter) write(w http.ResponseWriter, req *http.Request, status int, data any) error {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	format, err := ParseFormat(req.URL.Query().Get("format"))
	if err != nil {
		format = JSON
	}
	w.Header().Set("Content-Type", format.ContentType())
	if status != 0 {
		w.WriteHeader(status)
	}
	return Encode(w, format, data)
}
