package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/bcilog/bcilog/bcifile"
)

// summary describes the record stream of one file.
type summary struct {
	records   int
	partial   int
	gaps      int
	rollovers int
	first     uint32
	last      uint32
}

func summarize(samples []bcifile.Sample) summary {
	var s summary
	s.records = len(samples)
	for i, sample := range samples {
		if sample.Flags.Partial() {
			s.partial++
		}
		if sample.Flags.GapBefore() {
			s.gaps++
		}
		if i == 0 {
			s.first = sample.Timestamp
		} else if sample.Timestamp < s.last {
			s.rollovers++
		}
		s.last = sample.Timestamp
	}
	return s
}

// rate is the mean record rate over the timestamp span. It is undefined when
// the span is empty or crosses a rollover.
func (s summary) rate() (float64, bool) {
	ms := s.last - s.first
	if s.rollovers > 0 || ms == 0 {
		return 0, false
	}
	return float64(s.records-1) / (float64(ms) / 1000), true
}

// channelMatrix returns the samples as a records x channels matrix.
func channelMatrix(samples []bcifile.Sample) *mat.Dense {
	data := make([]float64, 0, len(samples)*bcifile.NCHAN)
	for _, s := range samples {
		for _, v := range s.Channels {
			data = append(data, float64(v))
		}
	}
	return mat.NewDense(len(samples), bcifile.NCHAN, data)
}

func writeNpy(fname string, m *mat.Dense) error {
	f, err := os.Create(fname)
	if err != nil {
		return err
	}
	if err := npyio.Write(f, m); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readFile(fname string, nprint int, npyname string) error {
	r, err := bcifile.OpenReader(fname)
	if err != nil {
		return err
	}
	defer r.Close()
	samples, err := r.ReadAll()
	if err != nil {
		return err
	}

	h := r.Header
	fmt.Printf("%s: version %d, %d channels at %d Hz, %d-byte values, %d-byte records\n",
		fname, h.Version, h.Nchan, h.SampleRate, h.ValueLen, h.RecordLen)
	if r.TrailingBytes > 0 {
		fmt.Printf("Ignored %d bytes of an incomplete final record\n", r.TrailingBytes)
	}
	s := summarize(samples)
	fmt.Printf("%d records (%d partial, %d after a gap), %d timestamp rollovers\n",
		s.records, s.partial, s.gaps, s.rollovers)
	if s.records == 0 {
		return nil
	}
	if rate, ok := s.rate(); ok {
		fmt.Printf("Timestamps span %d ms, %.1f records per second\n", s.last-s.first, rate)
	}

	for i := 0; i < nprint && i < len(samples); i++ {
		fmt.Printf("%6d t=%d flags=%s %v\n", i, samples[i].Timestamp, samples[i].Flags, samples[i].Channels)
	}

	m := channelMatrix(samples)
	fmt.Println("Channel        mean      std dev")
	col := make([]float64, s.records)
	for c := 0; c < bcifile.NCHAN; c++ {
		mat.Col(col, c, m)
		mean, std := stat.MeanStdDev(col, nil)
		fmt.Printf("%7d %12.1f %12.1f\n", c+1, mean, std)
	}

	if npyname != "" {
		if err := writeNpy(npyname, m); err != nil {
			return err
		}
		fmt.Printf("Wrote %d x %d channel values to %s\n", s.records, bcifile.NCHAN, npyname)
	}
	return nil
}

func main() {
	nprint := flag.Int("n", 0, "print the first N records")
	npyname := flag.String("npy", "", "also write the channel values (records x 16) to this .npy file")
	flag.Usage = func() {
		fmt.Println("bciread, for summarizing .bci files written by bcilog")
		fmt.Println("Usage: bciread [flags] file.bci [file.bci...]")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if *npyname != "" && flag.NArg() > 1 {
		fmt.Println("-npy needs exactly one input file")
		os.Exit(2)
	}
	status := 0
	for _, fname := range flag.Args() {
		if err := readFile(fname, *nprint, *npyname); err != nil {
			fmt.Printf("error: %v\n", err)
			status = 1
		}
	}
	os.Exit(status)
}
