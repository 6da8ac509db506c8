package chatwidget

import "embed"

// TemplateFS contains the embedded HTML templates used for rendering the chat widget. The templates
// are split into a layout, the page that hosts the widget, and the partials that are re-rendered and
// pushed to the browser while a response streams in.
//
//go:embed templates/*
var TemplateFS embed.FS

// StaticFS contains the embedded static assets (widget script and stylesheet).
//
//go:embed static/*
var StaticFS embed.FS
