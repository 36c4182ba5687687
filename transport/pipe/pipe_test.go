package pipe

import (
	"testing"

	"httpwire/transport/test"

	"github.com/stretchr/testify/suite"
)

type PipeTestSuite struct {
	test.BufferedConnTestSuite
}

func TestPipeTestSuite(t *testing.T) {
	suite.Run(t, new(PipeTestSuite))
}

func (s *PipeTestSuite) SetupTest() {
	s.BufferedConnTestSuite.SetupTest()
	s.C1, s.C2 = New("A", "B", s.Clock, 20)
}
