package domain

// Completion is the outcome of one language model call. It is one of
// Success, ProtocolError or UpstreamFailure.
type Completion interface {
	completion()
}

// Success holds the answer extracted from choices[0].message.content.
type Success struct {
	Content string
}

// ProtocolError is a success status whose payload had no usable answer.
type ProtocolError struct {
	RawBody string
	Reason  string
}

// UpstreamFailure is a non-success status, or a transport failure when
// StatusCode is 0.
type UpstreamFailure struct {
	StatusCode int
	RawBody    string
	Err        error
}

func (Success) completion()         {}
func (ProtocolError) completion()   {}
func (UpstreamFailure) completion() {}

// AnswerOf converts a completion into an answer or a classified error.
func AnswerOf(c Completion) (string, error) {
	switch v := c.(type) {
	case Success:
		return v.Content, nil
	case ProtocolError:
		return "", &UpstreamProtocolError{Body: v.RawBody, Reason: v.Reason}
	case UpstreamFailure:
		return "", &UpstreamError{StatusCode: v.StatusCode, Body: v.RawBody, Err: v.Err}
	default:
		return "", &UpstreamProtocolError{Reason: "no completion"}
	}
}
