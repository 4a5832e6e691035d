package inform

import (
	"fmt"
	"strings"
	"time"

	"github.com/airenas/callrec/internal/pkg/events"
	"github.com/jordan-wright/email"
	"github.com/spf13/viper"
)

// Maker composes plain text notifications
type Maker struct {
	from     string
	to       []string
	device   string
	location *time.Location
}

// NewMaker creates email maker from config
func NewMaker(c *viper.Viper) (*Maker, error) {
	res := &Maker{from: c.GetString("inform.from"), device: c.GetString("inform.device")}
	for _, s := range strings.Split(c.GetString("inform.to"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			res.to = append(res.to, s)
		}
	}
	if res.from == "" {
		return nil, fmt.Errorf("no inform.from")
	}
	if len(res.to) == 0 {
		return nil, fmt.Errorf("no inform.to")
	}
	if l := c.GetString("inform.location"); l != "" {
		var err error
		if res.location, err = time.LoadLocation(l); err != nil {
			return nil, fmt.Errorf("can't load location %s: %w", l, err)
		}
	}
	return res, nil
}

// Make prepares email for the event
func (m *Maker) Make(ev *events.Event) (*email.Email, error) {
	res := email.NewEmail()
	res.From = m.from
	res.To = m.to
	at := ev.Time
	if m.location != nil {
		at = at.In(m.location)
	}
	switch ev.Type {
	case events.SessionExpired:
		res.Subject = m.prefix() + "backend session expired"
		res.Text = []byte(fmt.Sprintf("Backend login expired at %s.\nUploads are paused until a new session cookie is provided.\n",
			at.Format(time.RFC3339)))
	case events.PermissionRequired:
		res.Subject = m.prefix() + "permission required: " + ev.Permission
		res.Text = []byte(fmt.Sprintf("Permission '%s' is not granted (%s).\nCall records can't be processed until it is granted.\n",
			ev.Permission, at.Format(time.RFC3339)))
	default:
		return nil, fmt.Errorf("no email for event '%s'", ev.Type)
	}
	return res, nil
}

func (m *Maker) prefix() string {
	if m.device == "" {
		return "callrec: "
	}
	return "callrec (" + m.device + "): "
}
