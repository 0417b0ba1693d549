// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package chatlog

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndHistory(t *testing.T) {
	log := New()
	log.Append("room-1", Entry{Role: "user", Message: "hi", Timestamp: time.Now()})
	log.Append("room-1", Entry{Role: "assistant", Message: "hello", Timestamp: time.Now()})

	hist := log.History("room-1")
	require.Len(t, hist, 2)
	assert.Equal(t, "hi", hist[0].Message)
	assert.Equal(t, "hello", hist[1].Message)
}

func TestHistoryIsBoundedTo250(t *testing.T) {
	log := New()
	for i := 0; i < 300; i++ {
		log.Append("room-1", Entry{Role: "user", Message: fmt.Sprintf("msg-%d", i)})
	}

	hist := log.History("room-1")
	require.Len(t, hist, MaxEntriesPerRoom)
	assert.Equal(t, "msg-50", hist[0].Message, "oldest entries must be evicted first")
	assert.Equal(t, "msg-299", hist[len(hist)-1].Message)
}

func TestHistorySnapshotIsIndependent(t *testing.T) {
	log := New()
	log.Append("room-1", Entry{Role: "user", Message: "one"})

	hist := log.History("room-1")
	hist[0].Message = "mutated"

	fresh := log.History("room-1")
	assert.Equal(t, "one", fresh[0].Message)
}

func TestHistoryUnknownRoomIsEmpty(t *testing.T) {
	log := New()
	assert.Empty(t, log.History("nonexistent"))
}

func TestRoomsAreIndependent(t *testing.T) {
	log := New()
	log.Append("room-1", Entry{Message: "a"})
	log.Append("room-2", Entry{Message: "b"})

	assert.Len(t, log.History("room-1"), 1)
	assert.Len(t, log.History("room-2"), 1)
}
