// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package extract turns lines of credential-testing tool output into
// structured records. Everything here is pure: no I/O, no shared state.
package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Record is one credential found by a job. Port is 0 when the line carried
// no port.
type Record struct {
	Host        string    `json:"host"`
	Service     string    `json:"service"`
	Port        int       `json:"port,omitempty"`
	Username    string    `json:"username"`
	Password    string    `json:"password"`
	SourceJobID string    `json:"source_job_id,omitempty"`
	FoundAt     time.Time `json:"found_at,omitzero"`
}

// Key identifies a record for deduplication.
type Key struct {
	Host     string
	Service  string
	Port     int
	Username string
	Password string
}

// Key returns the deduplication key of r.
func (r Record) Key() Key {
	return Key{
		Host:     strings.ToLower(r.Host),
		Service:  strings.ToLower(r.Service),
		Port:     r.Port,
		Username: r.Username,
		Password: r.Password,
	}
}

var (
	// [22][ssh] host: 192.0.2.5   login: root   password: toor
	bracketed = regexp.MustCompile(`^\s*\[(\d{1,5})\]\[([A-Za-z0-9._+-]+)\]\s+host:\s*(\S+)\s+login:\s*(\S+)\s+password:\s?(.*)$`)

	// host: 192.0.2.5 login: root password: toor
	// login: root password: toor
	loose = regexp.MustCompile(`(?:^|\s)(?:host:\s*(\S+)\s+)?login:\s*(\S+)\s+password:\s?(.*)$`)
)

// Extract returns the credential carried by line, or nil when the line is not
// a credential line. The bracketed form yields port and service; the loose
// form leaves them empty and may leave Host empty for the caller to fill.
func Extract(line string) *Record {
	// Only the line terminator is stripped. Spaces around a password are
	// part of it.
	line = strings.TrimRight(line, "\r\n")

	if m := bracketed.FindStringSubmatch(line); m != nil {
		port, err := strconv.Atoi(m[1])
		if err != nil || port > 65535 {
			port = 0
		}
		return &Record{
			Host:     m[3],
			Service:  strings.ToLower(m[2]),
			Port:     port,
			Username: m[4],
			Password: m[5],
		}
	}

	if m := loose.FindStringSubmatch(line); m != nil {
		return &Record{
			Host:     m[1],
			Username: m[2],
			Password: m[3],
		}
	}
	return nil
}
