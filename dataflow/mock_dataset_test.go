// Mock of Dataset[int], written in the shape mockgen produces.

package dataflow

import (
	"iter"
	"reflect"

	"github.com/golang/mock/gomock"
)

type MockIntDataset struct {
	ctrl     *gomock.Controller
	recorder *MockIntDatasetMockRecorder
}

type MockIntDatasetMockRecorder struct {
	mock *MockIntDataset
}

func NewMockIntDataset(ctrl *gomock.Controller) *MockIntDataset {
	mock := &MockIntDataset{ctrl: ctrl}
	mock.recorder = &MockIntDatasetMockRecorder{mock}
	return mock
}

func (m *MockIntDataset) EXPECT() *MockIntDatasetMockRecorder {
	return m.recorder
}

func (m *MockIntDataset) ID() GUID {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ID")
	ret0, _ := ret[0].(GUID)
	return ret0
}

func (mr *MockIntDatasetMockRecorder) ID() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ID", reflect.TypeOf((*MockIntDataset)(nil).ID))
}

func (m *MockIntDataset) Partitions() []Partition {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Partitions")
	ret0, _ := ret[0].([]Partition)
	return ret0
}

func (mr *MockIntDatasetMockRecorder) Partitions() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Partitions", reflect.TypeOf((*MockIntDataset)(nil).Partitions))
}

func (m *MockIntDataset) Compute(tc *TaskContext, p Partition) (iter.Seq[int], error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Compute", tc, p)
	ret0, _ := ret[0].(iter.Seq[int])
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockIntDatasetMockRecorder) Compute(tc, p interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Compute", reflect.TypeOf((*MockIntDataset)(nil).Compute), tc, p)
}

func (m *MockIntDataset) StorageLevel() StorageLevel {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "StorageLevel")
	ret0, _ := ret[0].(StorageLevel)
	return ret0
}

func (mr *MockIntDatasetMockRecorder) StorageLevel() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "StorageLevel", reflect.TypeOf((*MockIntDataset)(nil).StorageLevel))
}

var _ Dataset[int] = (*MockIntDataset)(nil)
