package checker

import (
	"fmt"
	"time"

	"github.com/NordCoder/Deadswitch/internal/domain/contact"
)

const lastCheckInLayout = "2006-01-02 15:04 MST"

type Message struct {
	Subject string
	Body    string
}

func RenderMessage(c contact.Contact, u InactiveUser, loc *time.Location) Message {
	if loc == nil {
		loc = time.UTC
	}
	return Message{
		Subject: fmt.Sprintf("Urgent: %s has not checked in for over 48 hours", u.Email),
		Body: fmt.Sprintf(
			"Dear %s,\n\n"+
				"You are listed as an emergency contact for %s.\n"+
				"They have not checked in for %d hours.\n"+
				"Last check-in: %s\n\n"+
				"Please reach out to them as soon as possible to make sure they are safe.\n\n"+
				"This message was sent automatically by Deadswitch.",
			c.Name, u.Email, u.Hours, u.LastCheckIn.In(loc).Format(lastCheckInLayout),
		),
	}
}
