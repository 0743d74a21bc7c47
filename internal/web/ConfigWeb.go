// Copyright 2023 Jack Bister
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package web

import (
	"bytes"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/jackbister/zdbtimeline/internal/config"
)

// addConfigEndpoints exposes the effective configuration. It is read only since the configuration comes from a file
// and the command line.
func addConfigEndpoints(g *gin.RouterGroup, wi *webImpl) {
	g = g.Group("config")

	g.GET("", func(ctx *gin.Context) {
		var buf bytes.Buffer
		err := config.ToJSON(wi.cfg, &buf)
		if err != nil {
			ctx.AbortWithError(500, fmt.Errorf("failed to convert config to json: %w", err))
			return
		}
		ctx.Data(200, "application/json; charset=utf-8", buf.Bytes())
	})
}

func addEnumEndpoints(g *gin.RouterGroup, wi *webImpl) {
	providers := map[string]EnumProvider{}
	for _, p := range []EnumProvider{
		NewKindEnumProvider(),
		NewPoolEnumProvider(wi.eventRepo),
		NewSourceEnumProvider(wi.eventRepo),
	} {
		providers[p.Name()] = p
	}

	g.GET("enums/:name", func(ctx *gin.Context) {
		name := ctx.Param("name")
		p, ok := providers[name]
		if !ok {
			ctx.AbortWithStatusJSON(404, gin.H{"error": fmt.Sprintf("unknown enum name='%s'", name)})
			return
		}
		values, err := p.Values()
		if err != nil {
			ctx.AbortWithError(500, err)
			return
		}
		ctx.JSON(200, values)
	})
}
