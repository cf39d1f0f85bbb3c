// Package notify delivers desktop notifications for detected changes.
// Delivery is best effort: a broken notification daemon must never fail
// a check cycle.
package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/magister-tools/magctl/internal/config"
	"github.com/magister-tools/magctl/internal/logger"
	"github.com/magister-tools/magctl/internal/tracker"
)

const lowGradeThreshold = 5.5

func init() {
	beeep.AppName = "magctl"
}

// Notifier maps tracker changes to desktop notifications, honoring the
// per-category switches and quiet hours from the configuration.
type Notifier struct {
	cfg config.NotificationConfig
	log *logger.Logger

	// now is overridable for quiet hours tests.
	now func() time.Time

	// send and alert are overridable for tests; defaults go through beeep.
	send  func(title, message string) error
	alert func(title, message string) error
}

// New creates a notifier with the given configuration.
func New(cfg config.NotificationConfig, log *logger.Logger) *Notifier {
	return &Notifier{
		cfg: cfg,
		log: log,
		now: time.Now,
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
		alert: func(title, message string) error {
			return beeep.Alert(title, message, "")
		},
	}
}

// InQuietHours reports whether notifications are currently suppressed.
// A start hour greater than the end hour spans midnight (22 to 7 means
// quiet from 22:00 through 06:59).
func (n *Notifier) InQuietHours() bool {
	start, end := n.cfg.QuietHoursStart, n.cfg.QuietHoursEnd
	if start < 0 || end < 0 {
		return false
	}
	hour := n.now().Hour()
	if start > end {
		return hour >= start || hour < end
	}
	return start <= hour && hour < end
}

// Notify sends one notification for a change. It reports whether a
// notification went out; quiet hours, disabled categories, and delivery
// failures all yield false without an error.
func (n *Notifier) Notify(change tracker.Change) bool {
	title, message, urgent, ok := n.render(change)
	if !ok {
		return false
	}
	if n.InQuietHours() {
		n.log.Debug("suppressing notification during quiet hours: %s", title)
		return false
	}

	var err error
	if urgent {
		err = n.alert(title, message)
	} else {
		err = n.send(title, message)
	}
	if err != nil {
		n.log.Debug("notification delivery failed: %v", err)
		return false
	}
	return true
}

// NotifyAll sends notifications for a batch of changes and returns how
// many were delivered.
func (n *Notifier) NotifyAll(changes []tracker.Change) int {
	sent := 0
	for _, change := range changes {
		if n.Notify(change) {
			sent++
		}
	}
	return sent
}

// SendTest sends a notification to verify the desktop setup works,
// bypassing quiet hours.
func (n *Notifier) SendTest() error {
	return n.send("magctl", "Notificaties werken correct!")
}

func (n *Notifier) render(change tracker.Change) (title, message string, urgent, ok bool) {
	switch change.Type {
	case tracker.ChangeNewGrade:
		if !n.cfg.GradesEnabled {
			return "", "", false, false
		}
		title = fmt.Sprintf("Nieuw cijfer: %s", change.Subject)
		message = change.Details.Value
		if change.Details.GradeDescription != "" {
			message += " - " + change.Details.GradeDescription
		}
		urgent = isLowGrade(change.Details.Value)
		return title, message, urgent, true

	case tracker.ChangeSchedule:
		if !n.cfg.ScheduleEnabled {
			return "", "", false, false
		}
		if change.Details.Cancelled {
			title = fmt.Sprintf("Les uitgevallen: %s", change.Subject)
		} else {
			title = change.Description
		}
		return title, change.Subject, false, true

	case tracker.ChangeHomeworkDue:
		if !n.cfg.HomeworkEnabled {
			return "", "", false, false
		}
		title = fmt.Sprintf("Huiswerk deadline: %s", change.Subject)
		message = change.Description
		if change.Details.HomeworkDescription != "" {
			message += "\n" + change.Details.HomeworkDescription
		}
		return title, message, false, true
	}
	return "", "", false, false
}

func isLowGrade(value string) bool {
	v, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", "."), 64)
	if err != nil {
		return false
	}
	return v < lowGradeThreshold
}
