package api

import (
	"github.com/go-resty/resty/v2"
	"github.com/mrnavastar/mclaunch/util"
)

// NewQuilt returns a meta client for meta.quiltmc.org. Quilt does not publish
// a stable flag, so stability is inferred from the version having no
// prerelease suffix.
func NewQuilt(client *resty.Client, base string) *LoaderMeta {
	return &LoaderMeta{kind: util.LoaderQuilt, base: base, client: client}
}
