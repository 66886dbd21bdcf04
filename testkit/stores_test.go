/*
 * MIT License
 *
 * Copyright (c) 2022-2025 Arsene Tochemey Gandote
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package testkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tochemey/projector/eventstore"
)

func TestStores(t *testing.T) {
	ctx := context.TODO()
	stores, err := NewStores(ctx)
	require.NoError(t, err)

	require.NoError(t, stores.AppendNamed(ctx, "account-1", "AccountCreated"))
	require.NoError(t, stores.AppendNamed(ctx, "account-1", "AccountCredited", "AccountDebited"))

	events, err := stores.Events.Load(ctx, "account-1", 1)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "AccountDebited", events[2].Name)
	assert.EqualValues(t, 3, events[2].Number)

	// the stream is registered in the catalog
	record, err := stores.Documents.Read(ctx, eventstore.StreamsCollection, "account-1")
	require.NoError(t, err)
	assert.Equal(t, "account", record[eventstore.FieldCategory])

	require.NoError(t, stores.Close(ctx))
}
