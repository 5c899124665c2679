package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskRoundTrip(t *testing.T) {
	in := &ProcessTask{
		FileMD5:  "d41d8cd98f00b204e9800998ecf8427e",
		FilePath: "https://s3.example.com/merged/report.pdf?sig=abc",
		FileName: "report.pdf",
		UserID:   "alice",
		OrgTag:   "engineering",
		IsPublic: true,
	}

	data, err := in.Marshal()
	require.NoError(t, err)

	out, err := UnmarshalTask(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestTaskWireFieldNames(t *testing.T) {
	task := &ProcessTask{FileMD5: "abc", FileName: "a.txt", UserID: "bob"}
	data, err := task.Marshal()
	require.NoError(t, err)

	s := string(data)
	assert.Contains(t, s, `"fileMd5":"abc"`)
	assert.Contains(t, s, `"fileName":"a.txt"`)
	assert.Contains(t, s, `"userId":"bob"`)
	assert.Contains(t, s, `"orgTag":""`)
	assert.Contains(t, s, `"isPublic":false`)
}

func TestUnmarshalTaskRejectsGarbage(t *testing.T) {
	_, err := UnmarshalTask([]byte("not json"))
	assert.Error(t, err)
}
