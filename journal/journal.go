package journal

import (
	"path"
	"time"

	"github.com/boltdb/bolt"
	"github.com/hashicorp/go-msgpack/v2/codec"
	"github.com/pkg/errors"
	"github.com/pkopriv2/lockstep/common"
	uuid "github.com/satori/go.uuid"
	"github.com/spf13/afero"
)

const (
	PathKey     = "lockstep.journal.path"
	PathDefault = "/var/lockstep/journal.db"
)

var (
	ClosedError    = errors.New("Journal:Closed")
	CorruptedError = errors.New("Journal:Corrupted")
)

var recordsBucket = []byte("lockstep.journal.records")

var handle = &codec.MsgpackHandle{}

// A single framed event, as it crossed the wire.
type Record struct {
	Tick     uint64 `codec:"tick"`
	Source   string `codec:"source"`
	Outbound bool   `codec:"outbound"`
	Frame    []byte `codec:"frame"`
}

// A journal is an append only log of the traffic of one or more game
// sessions, backed by a bolt database.  The database is closed when the
// context that opened it is closed.
type Journal struct {
	ctx    common.Context
	logger common.Logger
	db     *bolt.DB
	path   string
}

// Opens a journal at a random temporary location.
func OpenRandom(ctx common.Context) (*Journal, error) {
	dir := afero.GetTempDir(afero.NewOsFs(), path.Join("lockstep", uuid.NewV1().String()))
	return Open(ctx, path.Join(dir, "journal.db"))
}

// Opens the journal at the location given by the context's configuration.
func OpenConfigured(ctx common.Context) (*Journal, error) {
	return Open(ctx, ctx.Config().Optional(PathKey, PathDefault))
}

// Opens a journal that is deleted when the context is closed.
func OpenTransient(ctx common.Context) (*Journal, error) {
	j, err := OpenRandom(ctx)
	if err != nil {
		return nil, err
	}

	dir := path.Dir(j.path)
	ctx.Control().Defer(func(error) {
		j.logger.Debug("Deleting journal [%v]", dir)
		afero.NewOsFs().RemoveAll(dir)
	})
	return j, nil
}

func Open(ctx common.Context, loc string) (*Journal, error) {
	ctx.Logger().Debug("Opening journal [%v]", loc)

	db, err := bolt.Open(loc, 0666, &bolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "Opening journal [%v]", loc)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(recordsBucket)
		return e
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "Initializing journal [%v]", loc)
	}

	j := &Journal{ctx: ctx, logger: ctx.Logger().Fmt("Journal"), db: db, path: loc}
	ctx.Control().Defer(func(error) {
		j.logger.Debug("Closing journal [%v]", loc)
		db.Close()
	})
	return j, nil
}

func (j *Journal) Path() string {
	return j.path
}

// Returns the log of the given session.
func (j *Journal) Session(id uuid.UUID) *Session {
	return &Session{db: j.db, ctx: j.ctx, prefix: UUID(id), id: id}
}

// The records of a single session, in append order.
type Session struct {
	ctx    common.Context
	db     *bolt.DB
	prefix Key
	id     uuid.UUID
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

// Appends the record and returns its sequence number.  Sequence numbers
// increase across every session of the journal.
func (s *Session) Append(r Record) (seq uint64, err error) {
	if s.ctx.Control().IsClosed() {
		return 0, errors.WithStack(ClosedError)
	}

	var val []byte
	if err = codec.NewEncoderBytes(&val, handle).Encode(r); err != nil {
		return 0, errors.Wrap(err, "Encoding record")
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(recordsBucket)

		var e error
		seq, e = bucket.NextSequence()
		if e != nil {
			return e
		}
		return bucket.Put(s.prefix.ChildUint64(seq).Raw(), val)
	})
	return
}

// Visits every record of the session in order until fn returns false.
func (s *Session) Scan(fn func(seq uint64, r Record) bool) error {
	if s.ctx.Control().IsClosed() {
		return errors.WithStack(ClosedError)
	}

	return s.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(recordsBucket).Cursor()
		for k, v := cursor.Seek(s.prefix.Raw()); k != nil && s.prefix.ParentOf(k); k, v = cursor.Next() {
			seq, err := ParseUint64(k[len(s.prefix):])
			if err != nil {
				return errors.Wrapf(CorruptedError, "Bad key: %v", err)
			}

			var r Record
			if err := codec.NewDecoderBytes(v, handle).Decode(&r); err != nil {
				return errors.Wrapf(CorruptedError, "Record [%v]: %v", seq, err)
			}

			if !fn(seq, r) {
				return nil
			}
		}
		return nil
	})
}

func (s *Session) Len() (num int, err error) {
	err = s.Scan(func(uint64, Record) bool {
		num++
		return true
	})
	return
}
