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

package eventstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tochemey/projector/documentstore"
	"github.com/tochemey/projector/documentstore/memory"
	"github.com/tochemey/projector/eventstore"
)

func TestCatalog(t *testing.T) {
	ctx := context.TODO()
	documents := memory.NewDocumentStore()
	require.NoError(t, documents.Connect(ctx))

	catalog := eventstore.NewCatalog(documents, "")

	require.NoError(t, catalog.Register(ctx, "user-1"))
	require.NoError(t, catalog.Register(ctx, "user-1"))
	require.NoError(t, catalog.Register(ctx, "standalone"))

	document, err := documents.Read(ctx, eventstore.StreamsCollection, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", document[eventstore.FieldRealStreamName])
	assert.Equal(t, "user", document[eventstore.FieldCategory])

	document, err = documents.Read(ctx, eventstore.StreamsCollection, "standalone")
	require.NoError(t, err)
	assert.Nil(t, document[eventstore.FieldCategory])

	require.NoError(t, catalog.Unregister(ctx, "user-1"))
	require.NoError(t, catalog.Unregister(ctx, "user-1"))

	_, err = documents.Read(ctx, eventstore.StreamsCollection, "user-1")
	assert.ErrorIs(t, err, documentstore.ErrNotFound)

	var nilCatalog *eventstore.Catalog
	assert.NoError(t, nilCatalog.Register(ctx, "user-1"))
	assert.NoError(t, nilCatalog.Unregister(ctx, "user-1"))

	require.NoError(t, documents.Disconnect(ctx))
}
