// Copyright (c) 2019-2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// quipflip is the backend for a bluffing word game.  Players spend wallet
// credit to write a phrase for a prompt, to write copies of other players'
// phrases, and to vote on which of three phrases is the original.  The
// server exposes a JSON API over HTTPS and stores all state in MySQL;
// redis is optional and shares locks, rate limits, and queue depth between
// instances.
//
// Timed rounds expire server side.  A background sweeper refunds most of
// the entry cost when a round times out, and closes voting on phrasesets
// whose windows have lapsed.  Phrase validation runs against a word list
// loaded at startup; send SIGUSR1 to reload it without a restart.
package main
