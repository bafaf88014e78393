/*-
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package syncqueue

import (
	"context"
	"fmt"
)

// Router dispatches items to a transport chosen by item type, falling
// back to Default when set.
type Router struct {
	Default Transport
	routes  map[ItemType]Transport
}

var _ Transport = (*Router)(nil)

func NewRouter(def Transport) *Router {
	return &Router{Default: def, routes: make(map[ItemType]Transport)}
}

// Route sends items of type t through tr.
func (r *Router) Route(t ItemType, tr Transport) *Router {
	r.routes[t] = tr
	return r
}

func (r *Router) Send(ctx context.Context, item *Item) error {
	tr, ok := r.routes[item.Type]
	if !ok {
		tr = r.Default
	}

	if tr == nil {
		return fmt.Errorf("%w: %s", ErrNoTransport, item.Type)
	}

	return tr.Send(ctx, item)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, item *Item) error

func (f TransportFunc) Send(ctx context.Context, item *Item) error {
	return f(ctx, item)
}
