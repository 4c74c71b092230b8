package session

import (
	"context"
	"encoding/json"

	"github.com/grantcarthew/bidictl/internal/bidiproto"
)

// stubbedMethods lists every input.*/storage.*/webExtension.* command
// named by the BiDi namespace but not implemented by this translator;
// the action interpreter and the web-extension registry are external
// collaborators this repo does not host, per §1 and §4.11.
var stubbedMethods = []string{
	"input.performActions",
	"input.releaseActions",
	"input.setFiles",
	"storage.getCookies",
	"storage.setCookie",
	"storage.deleteCookies",
	"webExtension.install",
	"webExtension.uninstall",
}

func (s *Session) registerStubProcessor() {
	for _, method := range stubbedMethods {
		s.router.Register(method, handleUnsupported)
	}
}

func handleUnsupported(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return nil, bidiproto.NewError(bidiproto.ErrUnsupportedOp, "unsupported operation")
}
