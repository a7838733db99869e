package notify

import (
	"fmt"

	"github.com/clinicore/clinic-platform/internal/appointments"
)

// Template ids, keyed by lifecycle event and receiving party.
const (
	TemplateAppointmentRequested   = "appointment_requested"
	TemplateNewAppointmentRequest  = "new_appointment_request"
	TemplateAppointmentConfirmed   = "appointment_confirmed"
	TemplateAppointmentRejected    = "appointment_rejected"
	TemplateRescheduleReqDoctor    = "reschedule_request_doctor"
	TemplateRescheduleReqPatient   = "reschedule_request_patient"
	TemplateRescheduleApproved     = "reschedule_approved"
	TemplateRescheduleRejected     = "reschedule_rejected"
	TemplateCanceledByPatient      = "appointment_canceled_by_patient"
	TemplateCanceledByDoctor       = "appointment_canceled_by_doctor"
	TemplateCancelConfirmPatient   = "cancellation_confirmation_patient"
	TemplateCancelConfirmDoctor    = "cancellation_confirmation_doctor"
	TemplateAppointmentCompleted   = "appointment_completed"
)

// Message is one rendered notification, shared by the in-app, push, and
// email channels.
type Message struct {
	TemplateID string
	Title      string
	Body       string
	Data       map[string]string
}

// templateInput carries the already-formatted values templates interpolate.
type templateInput struct {
	PatientName string
	DoctorName  string
	When        string // appointment time, clinic-local
	NewWhen     string // proposed time for reschedules, clinic-local
	Reason      string
}

func withReason(body, reason string) string {
	if reason == "" {
		return body
	}
	return fmt.Sprintf("%s Reason: %s.", body, reason)
}

// renderMessage produces the notification content for one template id.
func renderMessage(templateID string, a *appointments.Appointment, in templateInput) Message {
	doctorName := in.DoctorName
	if doctorName == "" {
		doctorName = "your doctor"
	}

	var title, body string
	switch templateID {
	case TemplateAppointmentRequested:
		title = "Appointment requested"
		body = fmt.Sprintf("Hi %s, your appointment request for %s has been received and is awaiting confirmation.", in.PatientName, in.When)
	case TemplateNewAppointmentRequest:
		title = "New appointment request"
		body = fmt.Sprintf("%s has requested an appointment on %s. Please confirm or reject it.", in.PatientName, in.When)
	case TemplateAppointmentConfirmed:
		title = "Appointment confirmed"
		body = fmt.Sprintf("Hi %s, your appointment on %s with %s is confirmed.", in.PatientName, in.When, doctorName)
	case TemplateAppointmentRejected:
		title = "Appointment rejected"
		body = withReason(fmt.Sprintf("Hi %s, your appointment request for %s was declined.", in.PatientName, in.When), in.Reason)
	case TemplateRescheduleReqDoctor:
		title = "Reschedule requested"
		body = withReason(fmt.Sprintf("%s has asked to move their appointment from %s to %s.", in.PatientName, in.When, in.NewWhen), in.Reason)
	case TemplateRescheduleReqPatient:
		title = "Reschedule request sent"
		body = fmt.Sprintf("Hi %s, your request to move your appointment to %s has been sent to %s.", in.PatientName, in.NewWhen, doctorName)
	case TemplateRescheduleApproved:
		title = "Reschedule approved"
		body = fmt.Sprintf("Hi %s, your appointment has been moved to %s.", in.PatientName, in.When)
	case TemplateRescheduleRejected:
		title = "Reschedule declined"
		body = withReason(fmt.Sprintf("Hi %s, your reschedule request was declined. Your appointment remains on %s.", in.PatientName, in.When), in.Reason)
	case TemplateCanceledByPatient:
		title = "Appointment canceled"
		body = withReason(fmt.Sprintf("%s has canceled the appointment scheduled for %s.", in.PatientName, in.When), in.Reason)
	case TemplateCanceledByDoctor:
		title = "Appointment canceled"
		body = withReason(fmt.Sprintf("Hi %s, your appointment on %s was canceled by %s.", in.PatientName, in.When, doctorName), in.Reason)
	case TemplateCancelConfirmPatient:
		title = "Cancellation confirmed"
		body = fmt.Sprintf("Hi %s, your appointment on %s has been canceled as requested.", in.PatientName, in.When)
	case TemplateCancelConfirmDoctor:
		title = "Cancellation confirmed"
		body = fmt.Sprintf("The appointment with %s on %s has been canceled as requested.", in.PatientName, in.When)
	case TemplateAppointmentCompleted:
		title = "Appointment completed"
		body = fmt.Sprintf("Hi %s, your appointment on %s is complete. Consultation notes and any prescription are available in the app.", in.PatientName, in.When)
	default:
		title = "Appointment update"
		body = fmt.Sprintf("Your appointment on %s has been updated.", in.When)
	}

	return Message{
		TemplateID: templateID,
		Title:      title,
		Body:       body,
		Data: map[string]string{
			"appointmentId": fmt.Sprintf("%d", a.ID),
			"event":         templateID,
			"status":        string(a.Status),
		},
	}
}

// delivery pairs one receiving party with its template for an event.
type delivery struct {
	toPatient  bool
	templateID string
}

// planDeliveries maps a committed transition to its per-party templates.
func planDeliveries(event appointments.Event, a *appointments.Appointment) []delivery {
	switch event {
	case appointments.EventBooked:
		return []delivery{
			{toPatient: true, templateID: TemplateAppointmentRequested},
			{toPatient: false, templateID: TemplateNewAppointmentRequest},
		}
	case appointments.EventConfirm:
		return []delivery{{toPatient: true, templateID: TemplateAppointmentConfirmed}}
	case appointments.EventReject:
		return []delivery{{toPatient: true, templateID: TemplateAppointmentRejected}}
	case appointments.EventRequestReschedule:
		return []delivery{
			{toPatient: false, templateID: TemplateRescheduleReqDoctor},
			{toPatient: true, templateID: TemplateRescheduleReqPatient},
		}
	case appointments.EventApproveReschedule:
		return []delivery{{toPatient: true, templateID: TemplateRescheduleApproved}}
	case appointments.EventRejectReschedule:
		return []delivery{{toPatient: true, templateID: TemplateRescheduleRejected}}
	case appointments.EventCancel:
		if a.CanceledBy == appointments.CanceledByPatient {
			return []delivery{
				{toPatient: false, templateID: TemplateCanceledByPatient},
				{toPatient: true, templateID: TemplateCancelConfirmPatient},
			}
		}
		return []delivery{
			{toPatient: true, templateID: TemplateCanceledByDoctor},
			{toPatient: false, templateID: TemplateCancelConfirmDoctor},
		}
	case appointments.EventComplete:
		return []delivery{{toPatient: true, templateID: TemplateAppointmentCompleted}}
	}
	return nil
}
