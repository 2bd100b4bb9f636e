package common

import "errors"

// ProjectName brands banners, temp files and default database names.
const ProjectName = "ragserver"

// TempFilePrefix marks temp files created during ingest so the store can
// unlink them after upsert.
const TempFilePrefix = ProjectName + "_"

// Sentinel errors tagging the failure domains surfaced at the HTTP
// boundary. Wrap them with fmt.Errorf("%w: ...", Err...) so callers can
// classify with errors.Is.
var (
	ErrConfig = errors.New("config error")
	ErrEmbed  = errors.New("embed error")
	ErrRerank = errors.New("rerank error")
	ErrStore  = errors.New("store error")
	ErrIngest = errors.New("ingest error")
)
