package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clinicore/clinic-platform/internal/appointments"
	"github.com/clinicore/clinic-platform/internal/directory"
	"github.com/clinicore/clinic-platform/internal/observability/metrics"
	"github.com/clinicore/clinic-platform/internal/timeutil"
	"github.com/clinicore/clinic-platform/pkg/logging"
)

// whenFormat is how appointment times are rendered in notification copy.
const whenFormat = "Monday, January 2 at 3:04 PM"

// Directory resolves notification recipients.
type Directory interface {
	UserByID(ctx context.Context, id int64) (*directory.User, error)
	DoctorByID(ctx context.Context, id int64) (*directory.Doctor, error)
	ClearPushToken(ctx context.Context, userID int64) error
}

// FeedStore persists the in-app channel.
type FeedStore interface {
	Insert(ctx context.Context, userID, appointmentID int64, msg Message) (*Notification, error)
}

// Orchestrator fans each committed lifecycle transition out to the in-app,
// push, and email channels. Channel failures are logged and counted but never
// surface to the caller; one broken channel must not mute the others.
type Orchestrator struct {
	feed    FeedStore
	dir     Directory
	email   EmailSender
	push    PushSender
	zone    *timeutil.Zone
	metrics *metrics.AppointmentMetrics
	logger  *logging.Logger
}

func NewOrchestrator(feed FeedStore, dir Directory, email EmailSender, push PushSender, zone *timeutil.Zone, m *metrics.AppointmentMetrics, logger *logging.Logger) *Orchestrator {
	return &Orchestrator{
		feed:    feed,
		dir:     dir,
		email:   email,
		push:    push,
		zone:    zone,
		metrics: m,
		logger:  logger,
	}
}

var _ appointments.Notifier = (*Orchestrator)(nil)

// Dispatch delivers the notifications for one transition. It returns an error
// only when no recipient could be resolved at all; partial channel failures
// are absorbed here.
func (o *Orchestrator) Dispatch(ctx context.Context, event appointments.Event, a *appointments.Appointment) error {
	patient, err := o.dir.UserByID(ctx, a.PatientID)
	if err != nil {
		return fmt.Errorf("notify: resolve patient %d: %w", a.PatientID, err)
	}
	doctorUser, err := o.resolveDoctorUser(ctx, a)
	if err != nil {
		o.logger.Warn("notify: doctor recipient unresolved",
			"appointment_id", a.ID, "event", string(event), "error", err)
	}

	in := templateInput{
		PatientName: patient.Name,
		When:        o.formatWhen(a.ScheduledAt),
		Reason:      reasonFor(event, a),
	}
	if doctorUser != nil {
		in.DoctorName = doctorUser.Name
	}
	if a.RequestedTime != nil {
		in.NewWhen = o.formatWhen(*a.RequestedTime)
	}

	for _, d := range planDeliveries(event, a) {
		recipient := patient
		if !d.toPatient {
			if doctorUser == nil {
				// Pool appointment with no assignee yet.
				continue
			}
			recipient = doctorUser
		}
		o.deliver(ctx, recipient, a, renderMessage(d.templateID, a, in))
	}
	return nil
}

// resolveDoctorUser finds the account behind the doctor side of the
// appointment. Pool appointments without an assigned virtual doctor have no
// doctor recipient.
func (o *Orchestrator) resolveDoctorUser(ctx context.Context, a *appointments.Appointment) (*directory.User, error) {
	if a.PoolVirtual() {
		if a.VirtualDoctorID == nil {
			return nil, nil
		}
		return o.dir.UserByID(ctx, *a.VirtualDoctorID)
	}
	doc, err := o.dir.DoctorByID(ctx, *a.DoctorID)
	if err != nil {
		return nil, err
	}
	return o.dir.UserByID(ctx, doc.UserID)
}

// deliver pushes one message through every channel the recipient can receive.
func (o *Orchestrator) deliver(ctx context.Context, u *directory.User, a *appointments.Appointment, msg Message) {
	if _, err := o.feed.Insert(ctx, u.ID, a.ID, msg); err != nil {
		o.channelFailed("inapp", u.ID, a.ID, msg.TemplateID, err)
	} else {
		o.metrics.ObserveNotification("inapp", "sent")
	}

	if o.push != nil && u.NotificationsEnabled && u.PushToken != "" {
		err := o.push.Send(ctx, u.PushToken, msg.Title, msg.Body, msg.Data)
		switch {
		case errors.Is(err, ErrInvalidPushToken):
			o.metrics.ObserveNotification("push", "invalid_token")
			if cerr := o.dir.ClearPushToken(ctx, u.ID); cerr != nil {
				o.logger.Warn("notify: clear stale push token", "user_id", u.ID, "error", cerr)
			}
		case err != nil:
			o.channelFailed("push", u.ID, a.ID, msg.TemplateID, err)
		default:
			o.metrics.ObserveNotification("push", "sent")
		}
	}

	if o.email != nil && u.Email != "" {
		err := o.email.Send(ctx, EmailMessage{
			To:         u.Email,
			ToName:     u.Name,
			TemplateID: msg.TemplateID,
			Subject:    msg.Title,
			Body:       msg.Body,
		})
		if err != nil {
			o.channelFailed("email", u.ID, a.ID, msg.TemplateID, err)
		} else {
			o.metrics.ObserveNotification("email", "sent")
		}
	}
}

func (o *Orchestrator) channelFailed(channel string, userID, appointmentID int64, templateID string, err error) {
	o.metrics.ObserveNotification(channel, "failed")
	o.logger.Error("notify: channel delivery failed",
		"channel", channel,
		"user_id", userID,
		"appointment_id", appointmentID,
		"template_id", templateID,
		"error", err,
	)
}

func (o *Orchestrator) formatWhen(t time.Time) string {
	return t.In(o.zone.Location()).Format(whenFormat)
}

// reasonFor picks the free-text reason that belongs to the event.
func reasonFor(event appointments.Event, a *appointments.Appointment) string {
	switch event {
	case appointments.EventReject:
		return a.RejectionReason
	case appointments.EventRequestReschedule:
		return a.RescheduleReason
	case appointments.EventRejectReschedule:
		return a.RescheduleRejectionReason
	case appointments.EventCancel:
		return a.CancelReason
	}
	return ""
}
