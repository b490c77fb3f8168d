// FilePath: internal/protocol/body.go
package protocol

import "strings"

// BodySeparator is the reserved byte between fields inside a message body.
const BodySeparator = "\x00"

// DeviceSeparator joins a dashboard id with a device, tag or selector id in
// a composite address ("<dashId>-<deviceId>"). A trailing "-0" is elidable
// on inbound addresses.
const DeviceSeparator = "-"

// Split cuts a body into its separator-delimited fields.
func Split(body string) []string {
	return strings.Split(body, BodySeparator)
}

// SplitN cuts a body into at most n fields; the last field keeps any
// remaining separators (multi-part values stay intact).
func SplitN(body string, n int) []string {
	return strings.SplitN(body, BodySeparator, n)
}

// Join assembles body fields with the reserved separator.
func Join(fields ...string) string {
	return strings.Join(fields, BodySeparator)
}

// BodyToSpaces renders a body human readable for logs.
func BodyToSpaces(body string) string {
	return strings.ReplaceAll(body, BodySeparator, " ")
}

// BodyFromSpaces is the inverse of BodyToSpaces, used by tests and tooling
// that write bodies in the documented space-separated notation.
func BodyFromSpaces(body string) string {
	return strings.ReplaceAll(body, " ", BodySeparator)
}
