package app

import (
	"github.com/vk/rulegrid/internal/tasks"
	"github.com/vk/rulegrid/modules/env_vars"
	"github.com/vk/rulegrid/modules/http_request"
	"github.com/vk/rulegrid/modules/print"
)

// coreModules is the definitive list of all handler modules compiled into
// the rulegrid binary.
var coreModules = []tasks.Module{
	&env_vars.Module{},
	&print.Module{},
	&http_request.Module{},
}
