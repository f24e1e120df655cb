// Package artifact defines the records written by the capture pipeline and
// the per-target and per-run reports. Consumers of an evidence bundle import
// this package to decode what was captured.
package artifact

import "encoding/json"

// RequestRecord is the serialised form of an outgoing request.
// PostData holds the decoded JSON value when the body is JSON and the raw
// body string otherwise; an absent body encodes as null.
type RequestRecord struct {
	URL      string            `json:"url"`
	Method   string            `json:"method"`
	Headers  map[string]string `json:"headers"`
	PostData any               `json:"postData"`
}

// ResponseRecord is the serialised form of an incoming response. Content is
// the raw body (base64 in JSON); it is empty when the body could not be
// retrieved.
type ResponseRecord struct {
	URL     string            `json:"url"`
	Content []byte            `json:"content"`
	Headers map[string]string `json:"headers"`
	Status  int               `json:"status"`
}

// NewRequestRecord builds a RequestRecord, decoding body as JSON when
// possible. hasBody distinguishes an empty body from no body.
func NewRequestRecord(url, method string, headers map[string]string, body string, hasBody bool) RequestRecord {
	rec := RequestRecord{URL: url, Method: method, Headers: headers}
	if !hasBody {
		return rec
	}
	var decoded any
	if err := json.Unmarshal([]byte(body), &decoded); err == nil {
		rec.PostData = decoded
	} else {
		rec.PostData = body
	}
	return rec
}

// MarshalRecord encodes a record with two-space indentation.
func MarshalRecord(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// UnmarshalRequest decodes a request log file.
func UnmarshalRequest(data []byte) (*RequestRecord, error) {
	var r RequestRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// UnmarshalResponse decodes a response log file.
func UnmarshalResponse(data []byte) (*ResponseRecord, error) {
	var r ResponseRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	if r.Content == nil {
		r.Content = []byte{}
	}
	return &r, nil
}
