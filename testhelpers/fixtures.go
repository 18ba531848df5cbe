// Package testhelpers provides shared utilities for testing refind.
package testhelpers

import (
	"fmt"
	"strings"
)

// NodeSpec describes one element of a synthetic hierarchy dump. The
// zero value is a plain invisible container; set fields as the test
// needs them. Disabled is inverted so the zero value matches the
// platform default of enabled="true".
type NodeSpec struct {
	Text        string
	ContentDesc string
	ResourceID  string
	Class       string
	Package     string
	Bounds      string

	Clickable     bool
	Disabled      bool
	Focusable     bool
	Focused       bool
	Scrollable    bool
	Selected      bool
	Checkable     bool
	Checked       bool
	LongClickable bool
	Password      bool

	Children []NodeSpec
}

// Dump renders a complete uiautomator-style XML document with the given
// root element, emitting every attribute the way real captures do.
func Dump(root NodeSpec) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>`)
	sb.WriteString("\n<hierarchy rotation=\"0\">")
	writeNode(&sb, root, 0)
	sb.WriteString("\n</hierarchy>")
	return sb.String()
}

func writeNode(sb *strings.Builder, spec NodeSpec, index int) {
	bounds := spec.Bounds
	if bounds == "" {
		bounds = "[0,0][1080,1920]"
	}
	pkg := spec.Package
	if pkg == "" {
		pkg = "com.example.app"
	}

	sb.WriteString("\n<node")
	attr(sb, "index", fmt.Sprintf("%d", index))
	attr(sb, "text", spec.Text)
	attr(sb, "resource-id", spec.ResourceID)
	attr(sb, "class", spec.Class)
	attr(sb, "package", pkg)
	attr(sb, "content-desc", spec.ContentDesc)
	attr(sb, "checkable", flag(spec.Checkable))
	attr(sb, "checked", flag(spec.Checked))
	attr(sb, "clickable", flag(spec.Clickable))
	attr(sb, "enabled", flag(!spec.Disabled))
	attr(sb, "focusable", flag(spec.Focusable))
	attr(sb, "focused", flag(spec.Focused))
	attr(sb, "scrollable", flag(spec.Scrollable))
	attr(sb, "long-clickable", flag(spec.LongClickable))
	attr(sb, "password", flag(spec.Password))
	attr(sb, "selected", flag(spec.Selected))
	attr(sb, "bounds", bounds)

	if len(spec.Children) == 0 {
		sb.WriteString(" />")
		return
	}
	sb.WriteString(">")
	for i, child := range spec.Children {
		writeNode(sb, child, i)
	}
	sb.WriteString("</node>")
}

func attr(sb *strings.Builder, name, value string) {
	fmt.Fprintf(sb, ` %s="%s"`, name, escape(value))
}

func flag(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

func escape(s string) string {
	return escaper.Replace(s)
}
