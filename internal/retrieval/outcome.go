package retrieval

// Outcome is the result of a retrieval: Success, Fallback or Unavailable.
type Outcome interface {
	outcome()
}

// Success carries the upstream object.
type Success struct {
	Data               []byte
	ContentType        string
	ContentDisposition string
}

// Fallback carries the bundled placeholder served in place of the object.
type Fallback struct {
	Data []byte
}

// Unavailable means neither the object nor the placeholder could be served.
// LastError is safe to show to clients.
type Unavailable struct {
	LastError string
}

func (Success) outcome()     {}
func (Fallback) outcome()    {}
func (Unavailable) outcome() {}
