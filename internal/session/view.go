package session

import "fmt"

// ViewError is the user-visible form of a failed interaction.
type ViewError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// View is everything the page needs to draw the session after one interaction.
type View struct {
	UploadIdentity  string     `json:"upload_identity,omitempty"`
	UploadName      string     `json:"upload_name,omitempty"`
	HasPrediction   bool       `json:"has_prediction"`
	Label           string     `json:"label,omitempty"`
	Confidence      float64    `json:"confidence"`
	ConfidenceText  string     `json:"confidence_text,omitempty"`
	ShowEmailForm   bool       `json:"show_email_form"`
	Email           string     `json:"email"`
	EmailStatus     string     `json:"email_status"`
	ButtonLabel     string     `json:"button_label,omitempty"`
	SendDisabled    bool       `json:"send_disabled"`
	ShowSendAnother bool       `json:"show_send_another"`
	Message         string     `json:"message,omitempty"`
	Error           *ViewError `json:"error,omitempty"`
}

var buttonLabels = map[EmailStatus]string{
	EmailIdle:    "Send Result via Email",
	EmailSending: "Sending Email...",
	EmailSent:    "Email Sent!",
}

// View derives the page model from the state. Prediction-dependent parts are only shown while
// an upload is present.
func (r Result) View() View {
	v := View{
		UploadName:  r.UploadName,
		Email:       r.Email,
		EmailStatus: r.EmailStatus.String(),
	}
	if r.UploadIdentity != nil {
		v.UploadIdentity = *r.UploadIdentity
	}
	if r.Prediction == nil || r.UploadIdentity == nil {
		return v
	}

	confidence := clampConfidence(r.Prediction.Confidence)
	v.HasPrediction = true
	v.Label = r.Prediction.Label
	v.Confidence = confidence
	v.ConfidenceText = fmt.Sprintf("%.2f%%", confidence)
	v.ShowEmailForm = true
	v.ButtonLabel = buttonLabels[r.EmailStatus]
	v.SendDisabled = r.EmailStatus != EmailIdle
	v.ShowSendAnother = r.EmailStatus == EmailSent
	return v
}

func (v View) withError(err error) View {
	if err == nil {
		return v
	}
	v.Error = &ViewError{Kind: KindOf(err), Message: err.Error()}
	return v
}
