package telemarketing

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/debtdesk/backoffice/internal/database"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// queueScanLimit caps how many candidates are loaded before ordering in memory.
const queueScanLimit = 500

type MongoProspectRepository struct {
	col *mongo.Collection
}

func NewMongoProspectRepository(ctx context.Context, col *mongo.Collection) (*MongoProspectRepository, error) {
	err := database.EnsureIndexes(ctx, col,
		database.Index{Keys: bson.D{{Key: "phone", Value: 1}}, Unique: true},
		database.Index{Keys: bson.D{{Key: "status", Value: 1}, {Key: "assignedTo", Value: 1}}},
		database.Index{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	)
	if err != nil {
		return nil, err
	}
	return &MongoProspectRepository{col: col}, nil
}

func (r *MongoProspectRepository) Create(ctx context.Context, p *Prospect) error {
	_, err := r.col.InsertOne(ctx, p)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicatePhone
	}
	return err
}

func (r *MongoProspectRepository) Get(ctx context.Context, id string) (*Prospect, error) {
	var p Prospect
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProspectNotFound
		}
		return nil, err
	}
	return &p, nil
}

func unassigned() bson.A {
	return bson.A{bson.M{"assignedTo": ""}, bson.M{"assignedTo": bson.M{"$exists": false}}}
}

func (r *MongoProspectRepository) List(ctx context.Context, f ProspectFilter) ([]*Prospect, error) {
	and := bson.A{}
	if f.Status != "" {
		and = append(and, bson.M{"status": f.Status})
	}
	if f.Source != "" {
		and = append(and, bson.M{"source": f.Source})
	}
	if f.Unassigned {
		and = append(and, bson.M{"$or": unassigned()})
	} else if f.AssignedTo != "" {
		and = append(and, bson.M{"assignedTo": f.AssignedTo})
	}
	if f.Search != "" {
		rx := bson.M{"$regex": regexp.QuoteMeta(f.Search), "$options": "i"}
		and = append(and, bson.M{"$or": bson.A{bson.M{"name": rx}, bson.M{"phone": rx}, bson.M{"email": rx}}})
	}
	filter := bson.M{}
	if len(and) > 0 {
		filter["$and"] = and
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	if f.Offset > 0 {
		opts.SetSkip(int64(f.Offset))
	}
	return r.find(ctx, filter, opts)
}

func (r *MongoProspectRepository) find(ctx context.Context, filter interface{}, opts *options.FindOptions) ([]*Prospect, error) {
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*Prospect{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// patchUpdate builds a $set/$unset document for the fields the patch touches.
// Empty strings are unset to match the omitempty encoding.
func patchUpdate(patch ProspectPatch, now time.Time) bson.M {
	set := bson.M{"updatedAt": now}
	unset := bson.M{}
	str := func(field string, v *string) {
		if v == nil {
			return
		}
		if *v == "" {
			unset[field] = ""
			return
		}
		set[field] = *v
	}
	str("name", patch.Name)
	str("phone", patch.Phone)
	str("email", patch.Email)
	str("status", patch.Status)
	str("source", patch.Source)
	str("assignedTo", patch.AssignedTo)
	str("notes", patch.Notes)
	str("lastDisposition", patch.LastDisposition)
	if patch.NextCallAt != nil {
		if patch.NextCallAt.IsZero() {
			unset["nextCallAt"] = ""
		} else {
			set["nextCallAt"] = patch.NextCallAt.UTC()
		}
	}
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

func (r *MongoProspectRepository) Update(ctx context.Context, id string, patch ProspectPatch, now time.Time) (*Prospect, error) {
	var p Prospect
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, patchUpdate(patch, now), opts).Decode(&p)
	switch {
	case mongo.IsDuplicateKeyError(err):
		return nil, ErrDuplicatePhone
	case errors.Is(err, mongo.ErrNoDocuments):
		return nil, ErrProspectNotFound
	case err != nil:
		return nil, err
	}
	return &p, nil
}

func (r *MongoProspectRepository) Delete(ctx context.Context, id string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id, "$or": notInCall()})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrProspectInCall
	}
	return nil
}

func (r *MongoProspectRepository) Assign(ctx context.Context, ids []string, agentID string, now time.Time) (int64, error) {
	update := bson.M{"$set": bson.M{"assignedTo": agentID, "updatedAt": now}}
	if agentID == "" {
		update = bson.M{"$unset": bson.M{"assignedTo": ""}, "$set": bson.M{"updatedAt": now}}
	}
	res, err := r.col.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": ids}}, update)
	if err != nil {
		return 0, err
	}
	return res.MatchedCount, nil
}

func notInCall() bson.A {
	return bson.A{bson.M{"inCallBy": ""}, bson.M{"inCallBy": bson.M{"$exists": false}}}
}

func queueFilter(q QueueQuery) bson.M {
	return bson.M{"$and": bson.A{
		bson.M{"$or": append(unassigned(), bson.M{"assignedTo": q.AgentID})},
		bson.M{"$or": notInCall()},
		bson.M{"status": bson.M{"$in": q.Statuses}},
		bson.M{"callAttempts": bson.M{"$lt": q.MaxAttempts}},
		bson.M{"$or": bson.A{bson.M{"nextCallAt": nil}, bson.M{"nextCallAt": bson.M{"$lte": q.Now}}}},
	}}
}

func (r *MongoProspectRepository) Callable(ctx context.Context, q QueueQuery) ([]*Prospect, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "nextCallAt", Value: -1}, {Key: "lastCalledAt", Value: 1}, {Key: "createdAt", Value: 1}}).
		SetLimit(queueScanLimit)
	return r.find(ctx, queueFilter(q), opts)
}

func (r *MongoProspectRepository) Claim(ctx context.Context, id, agentID string, maxAttempts int, now time.Time) (*Prospect, error) {
	filter := bson.M{
		"_id": id,
		"$and": bson.A{
			bson.M{"$or": append(unassigned(), bson.M{"assignedTo": agentID})},
			bson.M{"$or": notInCall()},
		},
		"callAttempts": bson.M{"$lt": maxAttempts},
	}
	update := bson.M{
		"$set": bson.M{"inCallBy": agentID, "lastCalledAt": now, "updatedAt": now},
		"$inc": bson.M{"callAttempts": 1},
	}
	var p Prospect
	err := r.col.FindOneAndUpdate(ctx, filter, update, options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, gerr := r.Get(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, ErrNotCallable
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *MongoProspectRepository) Release(ctx context.Context, id string, undo *ClaimUndo) error {
	unset := bson.M{"inCallBy": ""}
	update := bson.M{}
	if undo != nil {
		update["$inc"] = bson.M{"callAttempts": -1}
		if undo.LastCalledAt != nil {
			update["$set"] = bson.M{"lastCalledAt": *undo.LastCalledAt}
		} else {
			unset["lastCalledAt"] = ""
		}
	}
	update["$unset"] = unset
	_, err := r.col.UpdateByID(ctx, id, update)
	return err
}

func (r *MongoProspectRepository) RenameStatus(ctx context.Context, from, to string) (int64, error) {
	res, err := r.col.UpdateMany(ctx, bson.M{"status": from}, bson.M{"$set": bson.M{"status": to}})
	if err != nil {
		return 0, err
	}
	if _, err := r.col.UpdateMany(ctx, bson.M{"lastDisposition": from}, bson.M{"$set": bson.M{"lastDisposition": to}}); err != nil {
		return res.ModifiedCount, err
	}
	return res.ModifiedCount, nil
}

func (r *MongoProspectRepository) RenameSource(ctx context.Context, from, to string) (int64, error) {
	res, err := r.col.UpdateMany(ctx, bson.M{"source": from}, bson.M{"$set": bson.M{"source": to}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

type MongoSessionRepository struct {
	col *mongo.Collection
}

func NewMongoSessionRepository(ctx context.Context, col *mongo.Collection) (*MongoSessionRepository, error) {
	err := database.EnsureIndexes(ctx, col,
		database.Index{Keys: bson.D{{Key: "openFor", Value: 1}}, Unique: true, Sparse: true},
		database.Index{Keys: bson.D{{Key: "agentId", Value: 1}, {Key: "startedAt", Value: -1}}},
	)
	if err != nil {
		return nil, err
	}
	return &MongoSessionRepository{col: col}, nil
}

func (r *MongoSessionRepository) Create(ctx context.Context, s *CallSession) error {
	_, err := r.col.InsertOne(ctx, s)
	if mongo.IsDuplicateKeyError(err) {
		return ErrSessionActive
	}
	return err
}

func (r *MongoSessionRepository) findOne(ctx context.Context, filter bson.M) (*CallSession, error) {
	var s CallSession
	if err := r.col.FindOne(ctx, filter).Decode(&s); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *MongoSessionRepository) Get(ctx context.Context, id string) (*CallSession, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoSessionRepository) OpenByAgent(ctx context.Context, agentID string) (*CallSession, error) {
	return r.findOne(ctx, bson.M{"openFor": agentID})
}

func (r *MongoSessionRepository) Update(ctx context.Context, s *CallSession) error {
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": s.ID}, s)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *MongoSessionRepository) List(ctx context.Context, f SessionFilter) ([]*CallSession, error) {
	filter := bson.M{}
	if f.AgentID != "" {
		filter["agentId"] = f.AgentID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if rng := timeRange(f.From, f.To); rng != nil {
		filter["startedAt"] = rng
	}
	opts := options.Find().SetSort(bson.D{{Key: "startedAt", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*CallSession{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func timeRange(from, to time.Time) bson.M {
	if from.IsZero() && to.IsZero() {
		return nil
	}
	rng := bson.M{}
	if !from.IsZero() {
		rng["$gte"] = from
	}
	if !to.IsZero() {
		rng["$lt"] = to
	}
	return rng
}

type MongoCallLogRepository struct {
	col *mongo.Collection
}

func NewMongoCallLogRepository(ctx context.Context, col *mongo.Collection) (*MongoCallLogRepository, error) {
	err := database.EnsureIndexes(ctx, col,
		database.Index{Keys: bson.D{{Key: "sessionId", Value: 1}, {Key: "startedAt", Value: -1}}},
		database.Index{Keys: bson.D{{Key: "agentId", Value: 1}, {Key: "startedAt", Value: -1}}},
		database.Index{Keys: bson.D{{Key: "prospectId", Value: 1}, {Key: "startedAt", Value: -1}}},
	)
	if err != nil {
		return nil, err
	}
	return &MongoCallLogRepository{col: col}, nil
}

func (r *MongoCallLogRepository) Create(ctx context.Context, l *CallLog) error {
	_, err := r.col.InsertOne(ctx, l)
	return err
}

func (r *MongoCallLogRepository) Get(ctx context.Context, id string) (*CallLog, error) {
	var l CallLog
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&l); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCallLogNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (r *MongoCallLogRepository) Update(ctx context.Context, l *CallLog) error {
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": l.ID}, l)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrCallLogNotFound
	}
	return nil
}

func (r *MongoCallLogRepository) List(ctx context.Context, f CallLogFilter) ([]*CallLog, error) {
	filter := bson.M{}
	if f.SessionID != "" {
		filter["sessionId"] = f.SessionID
	}
	if f.AgentID != "" {
		filter["agentId"] = f.AgentID
	}
	if f.ProspectID != "" {
		filter["prospectId"] = f.ProspectID
	}
	if rng := timeRange(f.From, f.To); rng != nil {
		filter["startedAt"] = rng
	}
	opts := options.Find().SetSort(bson.D{{Key: "startedAt", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*CallLog{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type MongoSettingsRepository struct {
	col *mongo.Collection
}

func NewMongoSettingsRepository(col *mongo.Collection) *MongoSettingsRepository {
	return &MongoSettingsRepository{col: col}
}

func (r *MongoSettingsRepository) Get(ctx context.Context) (*Settings, error) {
	var s Settings
	if err := r.col.FindOne(ctx, bson.M{"_id": SettingsID}).Decode(&s); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSettingsNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *MongoSettingsRepository) Save(ctx context.Context, s *Settings) error {
	s.ID = SettingsID
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": SettingsID}, s, options.Replace().SetUpsert(true))
	return err
}
