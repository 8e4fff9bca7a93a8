// Copyright 2024 The go-nic Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package alert

import (
	"crypto/tls"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	mail "gopkg.in/gomail.v2"
)

var (
	alertMailUsr  = os.Getenv("MAIL_USERNAME")
	alertMailPwd  = os.Getenv("MAIL_PASSWORD")
	alertMailSrv  = os.Getenv("MAIL_SERVER")
	alertMailPort = atoi(os.Getenv("MAIL_PORT"))
	alertMailTgts = strings.Split(os.Getenv("MAIL_TGTS"), ",")
)

// Mail is a Sink that delivers alerts by e-mail. Credentials come from the
// MAIL_USERNAME, MAIL_PASSWORD, MAIL_SERVER, MAIL_PORT and MAIL_TGTS
// environment variables; with incomplete credentials alerts are logged and
// dropped.
type Mail struct {
	msg  *log.Logger
	send func(m *mail.Message) error
}

func NewMail(msg *log.Logger) *Mail {
	return &Mail{
		msg:  msg,
		send: sendMail,
	}
}

func (s *Mail) Notify(kind Kind, text string) {
	if alertMailUsr == "" || alertMailPwd == "" ||
		alertMailSrv == "" || alertMailPort == 0 ||
		len(alertMailTgts) == 0 || alertMailTgts[0] == "" {
		s.msg.Printf("could not send mail alert: missing credentials")
		return
	}

	m := mail.NewMessage()
	m.SetHeader("From", alertMailUsr)
	m.SetHeader("Bcc", alertMailTgts...)
	m.SetHeader("Subject", fmt.Sprintf("[elx] alert: %s", kind))
	m.SetBody("text/plain", text)

	err := s.send(m)
	if err != nil {
		s.msg.Printf("could not send mail alert: %+v", err)
	}
}

func sendMail(m *mail.Message) error {
	dial := mail.NewDialer(alertMailSrv, alertMailPort, alertMailUsr, alertMailPwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	return dial.DialAndSend(m)
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
