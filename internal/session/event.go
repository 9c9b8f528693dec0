package session

// Event is one discrete user action. Every interaction is rendered against exactly one event.
type Event interface {
	isEvent()
}

// Refresh re-renders the current state without any user action.
type Refresh struct{}

// Upload selects an image. Identity detects a different file; Name is shown to the user.
type Upload struct {
	Identity string
	Name     string
	Image    []byte
}

// ClearUpload removes the selected image.
type ClearUpload struct{}

// SubmitEmail asks for the current prediction to be mailed to Address.
type SubmitEmail struct {
	Address string
}

// ResetEmail is the "send another" action after a successful send.
type ResetEmail struct{}

func (Refresh) isEvent()     {}
func (Upload) isEvent()      {}
func (ClearUpload) isEvent() {}
func (SubmitEmail) isEvent() {}
func (ResetEmail) isEvent()  {}
