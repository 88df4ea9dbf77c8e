// Package storage persists answer records and the local profile in a flat
// key/value store using the same layout the web client keeps in local
// storage: one key holding a JSON map of answers and one holding the profile.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"

	"prepdeck/internal/domain"
	"prepdeck/internal/ports"
)

const (
	AnswersKey = "prep_answers_v1"
	ProfileKey = "prep_profile_v1"
)

// AnswerStore implements ports.AnswerRepository on a key/value store. Writes
// are last-write-wins per composite key.
type AnswerStore struct {
	kv        ports.KeyValueStore
	namespace string
}

// NewAnswerStore returns a store. A non-empty namespace prefixes both keys so
// several users can share one backing store.
func NewAnswerStore(kv ports.KeyValueStore, namespace string) *AnswerStore {
	return &AnswerStore{kv: kv, namespace: strings.TrimSpace(namespace)}
}

// Updater is implemented by backends that can read and rewrite one key
// atomically, even across processes. fn returns nil to leave the value as is.
type Updater interface {
	Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error
}

type lockKey struct {
	kv  ports.KeyValueStore
	key string
}

// keyLocks holds one mutex per backend and scoped key, shared by every
// AnswerStore built on that backend.
var keyLocks sync.Map

func lockFor(kv ports.KeyValueStore, key string) *sync.Mutex {
	mu, _ := keyLocks.LoadOrStore(lockKey{kv: kv, key: key}, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// RecordKey formats a composite key as "<entity>::r<round>::q<question>".
func RecordKey(key domain.AnswerKey) string {
	return fmt.Sprintf("%s::r%d::q%d", key.EntityID, key.RoundNumber, key.QuestionIndex)
}

// ParseRecordKey is the inverse of RecordKey. The round and question parts
// are taken from the right so the entity may itself contain "::".
func ParseRecordKey(raw string) (domain.AnswerKey, error) {
	malformed := fmt.Errorf("%w: malformed answer key %q", domain.ErrValidation, raw)
	qAt := strings.LastIndex(raw, "::")
	if qAt < 0 {
		return domain.AnswerKey{}, malformed
	}
	rAt := strings.LastIndex(raw[:qAt], "::")
	if rAt <= 0 {
		return domain.AnswerKey{}, malformed
	}
	entity, roundPart, questionPart := raw[:rAt], raw[rAt+2:qAt], raw[qAt+2:]
	if !strings.HasPrefix(roundPart, "r") || !strings.HasPrefix(questionPart, "q") {
		return domain.AnswerKey{}, malformed
	}
	round, err := strconv.Atoi(roundPart[1:])
	if err != nil {
		return domain.AnswerKey{}, fmt.Errorf("%w: malformed round in %q", domain.ErrValidation, raw)
	}
	question, err := strconv.Atoi(questionPart[1:])
	if err != nil {
		return domain.AnswerKey{}, fmt.Errorf("%w: malformed question in %q", domain.ErrValidation, raw)
	}
	return domain.AnswerKey{EntityID: entity, RoundNumber: round, QuestionIndex: question}, nil
}

func (s *AnswerStore) Save(ctx context.Context, record domain.AnswerRecord) error {
	return s.mutateAnswers(ctx, func(answers map[string]domain.AnswerRecord) bool {
		answers[RecordKey(record.Key())] = record
		return true
	})
}

func (s *AnswerStore) Get(ctx context.Context, key domain.AnswerKey) (domain.AnswerRecord, bool, error) {
	answers, err := s.loadAnswers(ctx)
	if err != nil {
		return domain.AnswerRecord{}, false, err
	}
	record, ok := answers[RecordKey(key)]
	return record, ok, nil
}

// Delete removes exactly the record under key. Missing keys are not an error.
func (s *AnswerStore) Delete(ctx context.Context, key domain.AnswerKey) error {
	return s.mutateAnswers(ctx, func(answers map[string]domain.AnswerRecord) bool {
		id := RecordKey(key)
		if _, ok := answers[id]; !ok {
			return false
		}
		delete(answers, id)
		return true
	})
}

// mutateAnswers runs a read-modify-write of the answer map while holding the
// lock for its scoped key. fn reports whether it changed the map.
func (s *AnswerStore) mutateAnswers(ctx context.Context, fn func(map[string]domain.AnswerRecord) bool) error {
	key := s.scoped(AnswersKey)
	mu := lockFor(s.kv, key)
	mu.Lock()
	defer mu.Unlock()

	if updater, ok := s.kv.(Updater); ok {
		return updater.Update(ctx, key, func(current []byte) ([]byte, error) {
			answers := decodeAnswers(current)
			if !fn(answers) {
				return nil, nil
			}
			data, err := json.Marshal(answers)
			if err != nil {
				return nil, fmt.Errorf("failed to encode %s: %w", AnswersKey, err)
			}
			return data, nil
		})
	}

	answers, err := s.loadAnswers(ctx)
	if err != nil {
		return err
	}
	if !fn(answers) {
		return nil
	}
	return s.storeJSON(ctx, AnswersKey, answers)
}

// List returns all records ordered by entity, round and question.
func (s *AnswerStore) List(ctx context.Context) ([]domain.AnswerRecord, error) {
	answers, err := s.loadAnswers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.AnswerRecord, 0, len(answers))
	for _, record := range answers {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.EntityID != b.EntityID {
			return a.EntityID < b.EntityID
		}
		if a.RoundNumber != b.RoundNumber {
			return a.RoundNumber < b.RoundNumber
		}
		return a.QuestionIndex < b.QuestionIndex
	})
	return out, nil
}

// Stats counts saved answers per entity.
func (s *AnswerStore) Stats(ctx context.Context) (map[string]int, error) {
	records, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, record := range records {
		counts[record.EntityID]++
	}
	return counts, nil
}

// Profile returns the stored profile, or the zero profile when none is saved.
func (s *AnswerStore) Profile(ctx context.Context) (domain.Profile, error) {
	return s.loadProfile(ctx)
}

func (s *AnswerStore) SaveProfile(ctx context.Context, profile domain.Profile) error {
	return s.storeJSON(ctx, ProfileKey, profile)
}

func (s *AnswerStore) loadAnswers(ctx context.Context) (map[string]domain.AnswerRecord, error) {
	raw, err := s.raw(ctx, AnswersKey)
	if err != nil {
		return nil, err
	}
	return decodeAnswers(raw), nil
}

func decodeAnswers(raw []byte) map[string]domain.AnswerRecord {
	answers := make(map[string]domain.AnswerRecord)
	if len(raw) == 0 {
		return answers
	}
	if err := json.Unmarshal(raw, &answers); err != nil {
		logParseError(AnswersKey, err)
		return make(map[string]domain.AnswerRecord)
	}
	if answers == nil {
		answers = make(map[string]domain.AnswerRecord)
	}
	return answers
}

func (s *AnswerStore) loadProfile(ctx context.Context) (domain.Profile, error) {
	raw, err := s.raw(ctx, ProfileKey)
	if err != nil || raw == nil {
		return domain.Profile{}, err
	}
	var profile domain.Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		logParseError(ProfileKey, err)
		return domain.Profile{}, nil
	}
	return profile, nil
}

func (s *AnswerStore) raw(ctx context.Context, key string) ([]byte, error) {
	raw, found, err := s.kv.Get(ctx, s.scoped(key))
	if err != nil {
		return nil, err
	}
	if !found || len(raw) == 0 {
		return nil, nil
	}
	return raw, nil
}

// Corrupt stored data is treated as empty and only logged.
func logParseError(key string, err error) {
	log.Printf("storage: %v", fmt.Errorf("%w: %s: %v", domain.ErrPersistenceParse, key, err))
}

func (s *AnswerStore) storeJSON(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.kv.Set(ctx, s.scoped(key), data)
}

func (s *AnswerStore) scoped(key string) string {
	if s.namespace == "" {
		return key
	}
	return s.namespace + ":" + key
}
