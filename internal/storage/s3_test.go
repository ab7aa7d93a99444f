package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	getErr  error
	lastPut *s3.PutObjectInput
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	f.lastPut = in
	return &s3.PutObjectOutput{}, nil
}

func TestS3Backend(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	b := &S3Backend{client: fake, bucket: "state", key: "nifty/last_oi.json"}
	ctx := context.Background()

	_, err := b.Read(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	s := New(b)
	require.True(t, s.Save(ctx, testObservations()))
	assert.Equal(t, "application/json", aws.ToString(fake.lastPut.ContentType))
	assert.Contains(t, fake.objects, "state/nifty/last_oi.json")

	snap, info := s.Load(ctx)
	assert.True(t, info.Found)
	assert.Len(t, snap, 3)
	assert.Equal(t, "s3://state/nifty/last_oi.json", b.String())
}

func TestS3Backend_ReadError(t *testing.T) {
	b := &S3Backend{client: &fakeS3{getErr: errors.New("access denied")}, bucket: "state", key: "k"}
	_, err := b.Read(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestNewS3_RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), S3Options{})
	assert.Error(t, err)
}
