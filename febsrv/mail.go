// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package febsrv

import (
	"crypto/tls"
	"fmt"
	"os"

	mail "gopkg.in/gomail.v2"
)

// Mail configures the delivery of run summaries.
// Summaries are not sent when Server is empty.
// An empty Password is read from the MAIL_PASSWORD environment variable.
type Mail struct {
	Server   string   `toml:"server"`
	Port     int      `toml:"port"`
	User     string   `toml:"user"`
	Password string   `toml:"password"`
	To       []string `toml:"to"`
}

func newMessage(cfg Mail, subject, body string) *mail.Message {
	msg := mail.NewMessage()
	msg.SetHeader("From", cfg.User)
	msg.SetHeader("Bcc", cfg.To...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	return msg
}

func sendMail(cfg Mail, subject, body string) error {
	if len(cfg.To) == 0 {
		return fmt.Errorf("febsrv: no recipient for run summary")
	}

	pwd := cfg.Password
	if pwd == "" {
		pwd = os.Getenv("MAIL_PASSWORD")
	}

	dial := mail.NewDialer(cfg.Server, cfg.Port, cfg.User, pwd)
	dial.TLSConfig = &tls.Config{
		ServerName: cfg.Server,
	}

	err := dial.DialAndSend(newMessage(cfg, subject, body))
	if err != nil {
		return fmt.Errorf("febsrv: could not send mail: %w", err)
	}
	return nil
}
