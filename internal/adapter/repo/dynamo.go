package repo

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"photoflow/internal/domain"
)

// DynamoAPI is the slice of the DynamoDB client used by the repositories.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

const dynamoTimeLayout = time.RFC3339Nano

type jobRecord struct {
	JobID           string `dynamodbav:"jobId"`
	UserID          string `dynamodbav:"userId"`
	Status          string `dynamodbav:"status"`
	FileName        string `dynamodbav:"fileName"`
	UploadObjectKey string `dynamodbav:"uploadObjectKey,omitempty"`
	TempObjectKey   string `dynamodbav:"tempObjectKey,omitempty"`
	FinalObjectKey  string `dynamodbav:"finalObjectKey,omitempty"`
	Error           string `dynamodbav:"error,omitempty"`
	Prompt          string `dynamodbav:"prompt,omitempty"`
	BatchJobID      string `dynamodbav:"batchJobId,omitempty"`
	CreatedAt       string `dynamodbav:"createdAt"`
	UpdatedAt       string `dynamodbav:"updatedAt"`
	ExpiresAt       int64  `dynamodbav:"expiresAt"`
}

func newJobRecord(job *domain.Job) jobRecord {
	return jobRecord{
		JobID:           job.ID,
		UserID:          job.UserID,
		Status:          string(job.Status),
		FileName:        job.FileName,
		UploadObjectKey: job.UploadObjectKey,
		TempObjectKey:   job.TempObjectKey,
		FinalObjectKey:  job.FinalObjectKey,
		Error:           job.Error,
		Prompt:          job.Prompt,
		BatchJobID:      job.BatchJobID,
		CreatedAt:       job.CreatedAt.UTC().Format(dynamoTimeLayout),
		UpdatedAt:       job.UpdatedAt.UTC().Format(dynamoTimeLayout),
		ExpiresAt:       job.ExpiresAt.Unix(),
	}
}

func (r jobRecord) toDomain() *domain.Job {
	return &domain.Job{
		ID:              r.JobID,
		UserID:          r.UserID,
		Status:          domain.JobStatus(r.Status),
		FileName:        r.FileName,
		UploadObjectKey: r.UploadObjectKey,
		TempObjectKey:   r.TempObjectKey,
		FinalObjectKey:  r.FinalObjectKey,
		Error:           r.Error,
		Prompt:          r.Prompt,
		BatchJobID:      r.BatchJobID,
		CreatedAt:       parseDynamoTime(r.CreatedAt),
		UpdatedAt:       parseDynamoTime(r.UpdatedAt),
		ExpiresAt:       time.Unix(r.ExpiresAt, 0).UTC(),
	}
}

type batchRecord struct {
	BatchJobID     string   `dynamodbav:"batchJobId"`
	UserID         string   `dynamodbav:"userId"`
	SharedPrompt   string   `dynamodbav:"sharedPrompt,omitempty"`
	TotalCount     int      `dynamodbav:"totalCount"`
	CompletedCount int      `dynamodbav:"completedCount"`
	Status         string   `dynamodbav:"status"`
	JobIDs         []string `dynamodbav:"jobIds"`
	Error          string   `dynamodbav:"error,omitempty"`
	CreatedAt      string   `dynamodbav:"createdAt"`
	UpdatedAt      string   `dynamodbav:"updatedAt"`
	ExpiresAt      int64    `dynamodbav:"expiresAt"`
}

func newBatchRecord(batch *domain.BatchJob) batchRecord {
	return batchRecord{
		BatchJobID:     batch.ID,
		UserID:         batch.UserID,
		SharedPrompt:   batch.SharedPrompt,
		TotalCount:     batch.TotalCount,
		CompletedCount: batch.CompletedCount,
		Status:         string(batch.Status),
		JobIDs:         append([]string(nil), batch.JobIDs...),
		Error:          batch.Error,
		CreatedAt:      batch.CreatedAt.UTC().Format(dynamoTimeLayout),
		UpdatedAt:      batch.UpdatedAt.UTC().Format(dynamoTimeLayout),
		ExpiresAt:      batch.ExpiresAt.Unix(),
	}
}

func (r batchRecord) toDomain() *domain.BatchJob {
	return &domain.BatchJob{
		ID:             r.BatchJobID,
		UserID:         r.UserID,
		SharedPrompt:   r.SharedPrompt,
		TotalCount:     r.TotalCount,
		CompletedCount: r.CompletedCount,
		Status:         domain.JobStatus(r.Status),
		JobIDs:         append([]string(nil), r.JobIDs...),
		Error:          r.Error,
		CreatedAt:      parseDynamoTime(r.CreatedAt),
		UpdatedAt:      parseDynamoTime(r.UpdatedAt),
		ExpiresAt:      time.Unix(r.ExpiresAt, 0).UTC(),
	}
}

func parseDynamoTime(v string) time.Time {
	t, err := time.Parse(dynamoTimeLayout, v)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func stringKey(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{name: &types.AttributeValueMemberS{Value: value}}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// DynamoJobs implements domain.JobRepository on a DynamoDB table keyed by
// jobId with a batchJobId secondary index.
type DynamoJobs struct {
	api        DynamoAPI
	table      string
	batchIndex string
	now        func() time.Time
}

func NewDynamoJobs(api DynamoAPI, table, batchIndex string) *DynamoJobs {
	return &DynamoJobs{api: api, table: table, batchIndex: batchIndex, now: time.Now}
}

func (r *DynamoJobs) Create(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	item, err := attributevalue.MarshalMap(newJobRecord(job))
	if err != nil {
		return nil, domain.NewRepositoryError("marshal job", err)
	}
	cond, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name("jobId"))).
		Build()
	if err != nil {
		return nil, domain.NewRepositoryError("build job condition", err)
	}
	_, err = r.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.table),
		Item:                     item,
		ConditionExpression:      cond.Condition(),
		ExpressionAttributeNames: cond.Names(),
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, &domain.AlreadyExistsError{Entity: "job", ID: job.ID}
		}
		return nil, domain.NewRepositoryError("put job", err)
	}
	return job.Clone(), nil
}

func (r *DynamoJobs) FindByID(ctx context.Context, jobID string) (*domain.Job, error) {
	out, err := r.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            stringKey("jobId", jobID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, domain.NewRepositoryError("get job", err)
	}
	if len(out.Item) == 0 {
		return nil, &domain.NotFoundError{Entity: "job", ID: jobID}
	}
	var rec jobRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, domain.NewRepositoryError("unmarshal job", err)
	}
	if _, err := domain.ParseJobStatus(rec.Status); err != nil {
		return nil, domain.NewRepositoryError("unmarshal job", err)
	}
	return rec.toDomain(), nil
}

func (r *DynamoJobs) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, updates domain.JobUpdates) (*domain.Job, error) {
	upd := expression.
		Set(expression.Name("status"), expression.Value(string(status))).
		Set(expression.Name("updatedAt"), expression.Value(r.now().UTC().Format(dynamoTimeLayout)))
	if updates.TempObjectKey != nil {
		upd = upd.Set(expression.Name("tempObjectKey"), expression.Value(*updates.TempObjectKey))
	}
	if updates.FinalObjectKey != nil {
		upd = upd.Set(expression.Name("finalObjectKey"), expression.Value(*updates.FinalObjectKey))
	}
	if updates.Error != nil {
		upd = upd.Set(expression.Name("error"), expression.Value(*updates.Error))
	}
	expr, err := expression.NewBuilder().
		WithUpdate(upd).
		WithCondition(expression.AttributeExists(expression.Name("jobId"))).
		Build()
	if err != nil {
		return nil, domain.NewRepositoryError("build job update", err)
	}

	out, err := r.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.table),
		Key:                       stringKey("jobId", jobID),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, &domain.NotFoundError{Entity: "job", ID: jobID}
		}
		return nil, domain.NewRepositoryError("update job", err)
	}
	var rec jobRecord
	if err := attributevalue.UnmarshalMap(out.Attributes, &rec); err != nil {
		return nil, domain.NewRepositoryError("unmarshal job", err)
	}
	return rec.toDomain(), nil
}

// FindByBatchID queries the batch index. Index reads are eventually
// consistent.
func (r *DynamoJobs) FindByBatchID(ctx context.Context, batchJobID string) ([]*domain.Job, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key("batchJobId").Equal(expression.Value(batchJobID))).
		Build()
	if err != nil {
		return nil, domain.NewRepositoryError("build batch query", err)
	}

	paginator := dynamodb.NewQueryPaginator(r.api, &dynamodb.QueryInput{
		TableName:                 aws.String(r.table),
		IndexName:                 aws.String(r.batchIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})

	jobs := []*domain.Job{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, domain.NewRepositoryError("query jobs by batch", err)
		}
		var recs []jobRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &recs); err != nil {
			return nil, domain.NewRepositoryError("unmarshal jobs", err)
		}
		for _, rec := range recs {
			jobs = append(jobs, rec.toDomain())
		}
	}
	return jobs, nil
}

// DynamoBatches implements domain.BatchJobRepository on a table keyed by
// batchJobId.
type DynamoBatches struct {
	api   DynamoAPI
	table string
	now   func() time.Time
}

func NewDynamoBatches(api DynamoAPI, table string) *DynamoBatches {
	return &DynamoBatches{api: api, table: table, now: time.Now}
}

func (r *DynamoBatches) Create(ctx context.Context, batch *domain.BatchJob) (*domain.BatchJob, error) {
	item, err := attributevalue.MarshalMap(newBatchRecord(batch))
	if err != nil {
		return nil, domain.NewRepositoryError("marshal batch", err)
	}
	cond, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name("batchJobId"))).
		Build()
	if err != nil {
		return nil, domain.NewRepositoryError("build batch condition", err)
	}
	_, err = r.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.table),
		Item:                     item,
		ConditionExpression:      cond.Condition(),
		ExpressionAttributeNames: cond.Names(),
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, &domain.AlreadyExistsError{Entity: "batch", ID: batch.ID}
		}
		return nil, domain.NewRepositoryError("put batch", err)
	}
	return batch.Clone(), nil
}

func (r *DynamoBatches) FindByID(ctx context.Context, batchJobID string) (*domain.BatchJob, error) {
	out, err := r.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            stringKey("batchJobId", batchJobID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, domain.NewRepositoryError("get batch", err)
	}
	if len(out.Item) == 0 {
		return nil, &domain.NotFoundError{Entity: "batch", ID: batchJobID}
	}
	var rec batchRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, domain.NewRepositoryError("unmarshal batch", err)
	}
	if _, err := domain.ParseJobStatus(rec.Status); err != nil {
		return nil, domain.NewRepositoryError("unmarshal batch", err)
	}
	return rec.toDomain(), nil
}

func (r *DynamoBatches) UpdateStatus(ctx context.Context, batchJobID string, status domain.JobStatus, updates domain.BatchUpdates) (*domain.BatchJob, error) {
	upd := expression.
		Set(expression.Name("status"), expression.Value(string(status))).
		Set(expression.Name("updatedAt"), expression.Value(r.now().UTC().Format(dynamoTimeLayout)))
	if updates.CompletedCount != nil {
		upd = upd.Set(expression.Name("completedCount"), expression.Value(*updates.CompletedCount))
	}
	if updates.Error != nil {
		upd = upd.Set(expression.Name("error"), expression.Value(*updates.Error))
	}
	expr, err := expression.NewBuilder().
		WithUpdate(upd).
		WithCondition(expression.AttributeExists(expression.Name("batchJobId"))).
		Build()
	if err != nil {
		return nil, domain.NewRepositoryError("build batch update", err)
	}

	out, err := r.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.table),
		Key:                       stringKey("batchJobId", batchJobID),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, &domain.NotFoundError{Entity: "batch", ID: batchJobID}
		}
		return nil, domain.NewRepositoryError("update batch", err)
	}
	var rec batchRecord
	if err := attributevalue.UnmarshalMap(out.Attributes, &rec); err != nil {
		return nil, domain.NewRepositoryError("unmarshal batch", err)
	}
	return rec.toDomain(), nil
}

var (
	_ domain.JobRepository      = (*DynamoJobs)(nil)
	_ domain.BatchJobRepository = (*DynamoBatches)(nil)
)
