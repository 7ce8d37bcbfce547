/* Copyright © 2025-2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this repository for license terms
 *
 * Package s3store persists the club's player registry, session table, and
 * match log as JSON objects in an Amazon S3 bucket, one object per row
 * under a per-table key prefix. Writes of a single row are atomic from
 * the caller's perspective; there is no cross-row transaction, which the
 * one-operator usage model tolerates.
 */
package s3store

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/mikeb26/clubnight/internal"
	"github.com/mikeb26/clubnight/roster"
)

const (
	playerPrefix  = "players/"
	sessionPrefix = "sessions/"
	matchPrefix   = "matches/"
)

// StoreError wraps any storage failure with the operation that failed.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("s3store.%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func wrapErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// Store holds the club's durable tables in one S3 bucket.
type Store struct {
	// Config is the AWS configuration loaded in Init.
	Config aws.Config

	// Client is the s3 client used for all requests. Init sets it from
	// the default config; callers can override it before use.
	Client *s3.Client

	bucketName string
	ctx        context.Context
}

// New returns a Store backed by the named bucket. Callers should invoke
// Init() on the returned Store before use.
func New(ctxIn context.Context, bucketNameIn string) *Store {
	return &Store{
		ctx:        ctxIn,
		bucketName: bucketNameIn,
	}
}

// Init loads AWS configuration from the default sources (environment,
// shared config files) and verifies the bucket is accessible.
func (st *Store) Init() error {
	var err error
	st.Config, err = config.LoadDefaultConfig(st.ctx)
	if err != nil {
		return wrapErr("init", fmt.Errorf("failed to load AWS config: %w", err))
	}
	st.Client = s3.NewFromConfig(st.Config)

	// Permission check: verify bucket exists and is accessible
	if _, err = st.Client.HeadBucket(st.ctx, &s3.HeadBucketInput{
		Bucket: aws.String(st.bucketName),
	}); err != nil {
		return wrapErr("init",
			fmt.Errorf("head bucket failed for %s: %w", st.bucketName, err))
	}

	// Permission check: verify ability to list objects
	if _, err = st.Client.ListObjectsV2(st.ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(st.bucketName),
		MaxKeys: aws.Int32(1),
	}); err != nil {
		return wrapErr("init",
			fmt.Errorf("list objects failed for %s: %w", st.bucketName, err))
	}

	return nil
}

// PlayerRecord is one registry row.
type PlayerRecord struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Gender     string  `json:"gender"`
	TeamName   string  `json:"teamName,omitempty"`
	PriorMu    float64 `json:"priorMu"`
	PriorSigma float64 `json:"priorSigma"`
	Mu         float64 `json:"mu"`
	Sigma      float64 `json:"sigma"`
	Elo        float64 `json:"elo,omitempty"`
	Deviation  float64 `json:"deviation,omitempty"`
	Volatility float64 `json:"volatility,omitempty"`
}

// SessionRecord is one session-table row.
type SessionRecord struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	IsDoubles bool   `json:"isDoubles"`
	CreatedAt string `json:"createdAt"`
}

// CreatedTime parses the record's creation timestamp, tolerating the
// assorted formats other writers have used.
func (r *SessionRecord) CreatedTime() (time.Time, error) {
	return internal.ParseDateOrZero(r.CreatedAt)
}

// MatchRecord is one match-log row. Player3/Player4 are empty for
// singles. WinnerSide is 1 or 2.
type MatchRecord struct {
	ID         int64  `json:"id"`
	SessionID  int64  `json:"sessionId"`
	Player1    string `json:"player1"`
	Player2    string `json:"player2"`
	Player3    string `json:"player3,omitempty"`
	Player4    string `json:"player4,omitempty"`
	WinnerSide int    `json:"winnerSide"`
	Processed  bool   `json:"processed"`
	CreatedAt  string `json:"createdAt"`
}

func (r *MatchRecord) CreatedTime() (time.Time, error) {
	return internal.ParseDateOrZero(r.CreatedAt)
}

// Sides splits the row into its two sides: doubles rows pair 1+3 against
// 2+4, singles rows 1 against 2.
func (r *MatchRecord) Sides() (side1, side2 []string) {
	side1 = []string{r.Player1}
	side2 = []string{r.Player2}
	if r.Player3 != "" {
		side1 = append(side1, r.Player3)
	}
	if r.Player4 != "" {
		side2 = append(side2, r.Player4)
	}
	return side1, side2
}

func playerKey(name string) string {
	h := md5.New()
	io.WriteString(h, strings.ToLower(strings.TrimSpace(name)))
	return playerPrefix + hex.EncodeToString(h.Sum(nil)) + ".json"
}

func newRowID() int64 {
	return time.Now().UnixNano()
}

// GetAllPlayers returns the registry keyed by player name. An empty
// bucket is an empty registry, not an error.
func (st *Store) GetAllPlayers() (map[string]*roster.Player, error) {
	out := make(map[string]*roster.Player)
	err := st.forEachObject("getAllPlayers", playerPrefix, func(data []byte) error {
		var rec PlayerRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		out[rec.Name] = recordToPlayer(&rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertPlayers writes the given players to the registry, assigning row
// ids to players that never had one.
func (st *Store) UpsertPlayers(players map[string]*roster.Player) error {
	names := make([]string, 0, len(players))
	for name := range players {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := players[name]
		if p.StoreID == 0 {
			p.StoreID = newRowID()
		}
		data, err := json.Marshal(playerToRecord(p))
		if err != nil {
			return wrapErr("upsertPlayers", err)
		}
		if err := st.put(playerKey(p.Name), data); err != nil {
			return wrapErr("upsertPlayers", err)
		}
	}
	return nil
}

// DeletePlayersByIDs removes registry rows by their row id. Unknown ids
// are ignored.
func (st *Store) DeletePlayersByIDs(ids []int64) error {
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	var doomed []string
	err := st.forEachKeyedObject("deletePlayers", playerPrefix,
		func(key string, data []byte) error {
			var rec PlayerRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				return err
			}
			if want[rec.ID] {
				doomed = append(doomed, key)
			}
			return nil
		})
	if err != nil {
		return err
	}

	for _, key := range doomed {
		if _, err := st.Client.DeleteObject(st.ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(st.bucketName),
			Key:    aws.String(key),
		}); err != nil {
			return wrapErr("deletePlayers", err)
		}
	}
	return nil
}

// CreateSession appends a session row and returns its id.
func (st *Store) CreateSession(name string, isDoubles bool) (int64, error) {
	rec := SessionRecord{
		ID:        newRowID(),
		Name:      name,
		IsDoubles: isDoubles,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(&rec)
	if err != nil {
		return 0, wrapErr("createSession", err)
	}
	key := fmt.Sprintf("%s%d.json", sessionPrefix, rec.ID)
	if err := st.put(key, data); err != nil {
		return 0, wrapErr("createSession", err)
	}
	return rec.ID, nil
}

// GetSessionByName returns the newest session row with the given name,
// or nil when none exists.
func (st *Store) GetSessionByName(name string) (*SessionRecord, error) {
	all, err := st.GetAllSessions()
	if err != nil {
		return nil, err
	}
	var found *SessionRecord
	for i := range all {
		if all[i].Name == name {
			if found == nil || all[i].ID > found.ID {
				found = &all[i]
			}
		}
	}
	return found, nil
}

// GetAllSessions returns every session row, oldest first.
func (st *Store) GetAllSessions() ([]SessionRecord, error) {
	var out []SessionRecord
	err := st.forEachObject("getAllSessions", sessionPrefix, func(data []byte) error {
		var rec SessionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AddMatch appends an unprocessed match row and returns its id.
func (st *Store) AddMatch(sessionID int64, p1, p2 string, winnerSide int,
	p3, p4 string) (int64, error) {

	rec := MatchRecord{
		ID:         newRowID(),
		SessionID:  sessionID,
		Player1:    p1,
		Player2:    p2,
		Player3:    p3,
		Player4:    p4,
		WinnerSide: winnerSide,
		Processed:  false,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(&rec)
	if err != nil {
		return 0, wrapErr("addMatch", err)
	}
	if err := st.put(matchKey(rec.ID), data); err != nil {
		return 0, wrapErr("addMatch", err)
	}
	return rec.ID, nil
}

func matchKey(id int64) string {
	return fmt.Sprintf("%s%d.json", matchPrefix, id)
}

// GetUnprocessedMatches returns the session's match rows not yet applied
// to ratings, oldest first.
func (st *Store) GetUnprocessedMatches(sessionID int64) ([]MatchRecord, error) {
	all, err := st.GetAllMatches()
	if err != nil {
		return nil, err
	}
	var out []MatchRecord
	for _, rec := range all {
		if rec.SessionID == sessionID && !rec.Processed {
			out = append(out, rec)
		}
	}
	return out, nil
}

// MarkMatchesProcessed flips the processed flag on the given rows so a
// rating run applies each match exactly once.
func (st *Store) MarkMatchesProcessed(ids []int64) error {
	for _, id := range ids {
		data, err := st.get(matchKey(id))
		if err != nil {
			return wrapErr("markProcessed", err)
		}
		var rec MatchRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return wrapErr("markProcessed", err)
		}
		if rec.Processed {
			continue
		}
		rec.Processed = true
		updated, err := json.Marshal(&rec)
		if err != nil {
			return wrapErr("markProcessed", err)
		}
		if err := st.put(matchKey(id), updated); err != nil {
			return wrapErr("markProcessed", err)
		}
	}
	return nil
}

// GetAllMatches returns the full match log, oldest first.
func (st *Store) GetAllMatches() ([]MatchRecord, error) {
	var out []MatchRecord
	err := st.forEachObject("getAllMatches", matchPrefix, func(data []byte) error {
		var rec MatchRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (st *Store) put(key string, data []byte) error {
	_, err := st.Client.PutObject(st.ctx, &s3.PutObjectInput{
		Bucket:      aws.String(st.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	return err
}

func (st *Store) get(key string) ([]byte, error) {
	resp, err := st.Client.GetObject(st.ctx, &s3.GetObjectInput{
		Bucket: aws.String(st.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// forEachObject walks every object under prefix, invoking fn with its
// contents.
func (st *Store) forEachObject(op, prefix string, fn func(data []byte) error) error {
	return st.forEachKeyedObject(op, prefix, func(_ string, data []byte) error {
		return fn(data)
	})
}

func (st *Store) forEachKeyedObject(op, prefix string,
	fn func(key string, data []byte) error) error {

	paginator := s3.NewListObjectsV2Paginator(st.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(st.bucketName),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(st.ctx)
		if err != nil {
			return wrapErr(op, err)
		}
		for _, obj := range page.Contents {
			data, err := st.get(*obj.Key)
			if err != nil {
				// a row deleted mid-listing is not our problem
				var apiErr smithy.APIError
				if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
					continue
				}
				return wrapErr(op, err)
			}
			if err := fn(*obj.Key, data); err != nil {
				return wrapErr(op, err)
			}
		}
	}
	return nil
}

func recordToPlayer(rec *PlayerRecord) *roster.Player {
	return &roster.Player{
		Name:       rec.Name,
		Gender:     roster.Gender(rec.Gender),
		TeamName:   rec.TeamName,
		PriorMu:    rec.PriorMu,
		PriorSigma: rec.PriorSigma,
		Mu:         rec.Mu,
		Sigma:      rec.Sigma,
		Elo:        rec.Elo,
		Deviation:  rec.Deviation,
		Volatility: rec.Volatility,
		StoreID:    rec.ID,
	}
}

func playerToRecord(p *roster.Player) *PlayerRecord {
	return &PlayerRecord{
		ID:         p.StoreID,
		Name:       p.Name,
		Gender:     string(p.Gender),
		TeamName:   p.TeamName,
		PriorMu:    p.PriorMu,
		PriorSigma: p.PriorSigma,
		Mu:         p.Mu,
		Sigma:      p.Sigma,
		Elo:        p.Elo,
		Deviation:  p.Deviation,
		Volatility: p.Volatility,
	}
}
