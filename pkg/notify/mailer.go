// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package notify mails crash/error reports to the configured recipient,
// grounded on syz-cluster/email-reporter/sender.go's raw net/smtp +
// google/uuid message construction, generalized from that service's
// async queue into a direct synchronous send suitable for the fuzzer's
// own process.
package notify

import (
	"bytes"
	"fmt"
	"net/smtp"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/symflow/mazerunner/pkg/log"
)

// Report is one crash/error notification.
type Report struct {
	Subject  string
	Body     string
	Attach   string // path to the triggering input, attached as a file reference in the body
	Occurred time.Time
}

// Mailer sends Reports over SMTP. A nil *Mailer (or one built with an
// empty To address) is a no-op sender, matching config.py's optional
// --mail flag.
type Mailer struct {
	Host, User, Password string
	Port                 int
	From, To             string

	sent int
	max  int
}

// New builds a Mailer. max bounds how many reports are actually sent
// before further calls become silent no-ops, mirroring
// max_error_reports/max_crash_reports in config.py.
func New(host string, port int, user, password, from, to string, max int) *Mailer {
	return &Mailer{Host: host, Port: port, User: user, Password: password, From: from, To: to, max: max}
}

// Send mails r, unless m is nil, m.To is empty, or the max report count
// has already been reached.
func (m *Mailer) Send(r Report) error {
	if m == nil || m.To == "" {
		return nil
	}
	if m.max > 0 && m.sent >= m.max {
		log.Logf(2, "notify: max report count (%d) reached, dropping %q", m.max, r.Subject)
		return nil
	}

	msgID := fmt.Sprintf("<%s@%s>", uuid.NewString(), m.Host)
	body := r.Body
	if r.Attach != "" {
		body = fmt.Sprintf("%s\n\ntriggering input: %s", body, filepath.Base(r.Attach))
	}
	raw := rawEmail(m.From, m.To, r.Subject, msgID, body)

	var err error
	if m.Password != "" {
		auth := smtp.PlainAuth("", m.User, m.Password, m.Host)
		addr := fmt.Sprintf("%s:%d", m.Host, m.Port)
		err = smtp.SendMail(addr, auth, m.From, []string{m.To}, raw)
	} else {
		addr := fmt.Sprintf("%s:%d", m.Host, m.Port)
		err = smtp.SendMail(addr, nil, m.From, []string{m.To}, raw)
	}
	if err != nil {
		return fmt.Errorf("notify: send: %w", err)
	}
	m.sent++
	return nil
}

func rawEmail(from, to, subject, msgID, body string) []byte {
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "Message-ID: %s\r\n", msgID)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return msg.Bytes()
}

// CrashReport builds a standard crash notification body from a hang or
// crash classification, the generated file and its captured stderr tail.
func CrashReport(kind, inputPath string, stderr []byte) Report {
	tail := stderr
	const maxTail = 4096
	if len(tail) > maxTail {
		tail = tail[len(tail)-maxTail:]
	}
	return Report{
		Subject:  fmt.Sprintf("[mazerunner] %s: %s", kind, filepath.Base(inputPath)),
		Body:     fmt.Sprintf("classification: %s\ninput: %s\n\nstderr tail:\n%s", kind, inputPath, strings.TrimSpace(string(tail))),
		Attach:   inputPath,
		Occurred: time.Now(),
	}
}
